package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mbd888/ledgerlens/internal/circuitbreaker"
	"github.com/mbd888/ledgerlens/internal/metrics"
	"github.com/mbd888/ledgerlens/internal/retry"
	"github.com/mbd888/ledgerlens/internal/traces"
)

// rippleEpoch is 2000-01-01T00:00:00Z, the zero of ledger close times.
const rippleEpoch = 946684800

const (
	defaultRPCTimeout   = 20 * time.Second
	defaultRPCRate      = 8 // requests per second, public servers throttle hard
	defaultRPCBurst     = 4
	maxResponseBytes    = 8 << 20
	accountLinesPerPage = 400
	maxLinePages        = 5
	assetTxPerPage      = 50
	maxAssetTxPages     = 5
)

// RPCClient reads the ledger through a rippled-compatible JSON-RPC endpoint.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.Breaker
	policy     retry.Policy
	logger     *slog.Logger
}

// RPCOption configures an RPCClient.
type RPCOption func(*RPCClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) RPCOption {
	return func(c *RPCClient) { c.httpClient = hc }
}

// WithRateLimit sets the client-side request rate. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) RPCOption {
	return func(c *RPCClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p retry.Policy) RPCOption {
	return func(c *RPCClient) { c.policy = p }
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) RPCOption {
	return func(c *RPCClient) { c.breaker = b }
}

// WithRPCLogger sets the client logger.
func WithRPCLogger(l *slog.Logger) RPCOption {
	return func(c *RPCClient) { c.logger = l }
}

// NewRPCClient creates a client for endpoint, e.g.
// "https://s1.ripple.com:51234/".
func NewRPCClient(endpoint string, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultRPCTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRPCRate), defaultRPCBurst),
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsValidAddress validates the classic address checksum.
func (c *RPCClient) IsValidAddress(id string) bool {
	return ValidAddress(BaseAddress(id))
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *RPCClient) Breaker() *circuitbreaker.Breaker { return c.breaker }

// Methods lists the RPC methods the client issues, the breaker's keys.
var Methods = []string{"account_info", "account_tx", "account_lines", "gateway_balances"}

// Ping checks the endpoint answers server_info.
func (c *RPCClient) Ping(ctx context.Context) error {
	var out json.RawMessage
	return c.call(ctx, "server_info", struct{}{}, &out)
}

// AccountInfo fetches the validated account root.
func (c *RPCClient) AccountInfo(ctx context.Context, id string) (*AccountInfo, error) {
	var out struct {
		AccountData struct {
			Account    string `json:"Account"`
			Sequence   uint64 `json:"Sequence"`
			Balance    Amount `json:"Balance"`
			OwnerCount int    `json:"OwnerCount"`
			Flags      uint32 `json:"Flags"`
			Domain     string `json:"Domain"`
		} `json:"account_data"`
	}
	params := map[string]any{"account": BaseAddress(id), "ledger_index": "validated"}
	if err := c.call(ctx, "account_info", params, &out); err != nil {
		return nil, err
	}
	d := out.AccountData
	return &AccountInfo{
		Address:    d.Account,
		Sequence:   d.Sequence,
		Balance:    d.Balance,
		OwnerCount: d.OwnerCount,
		Flags:      d.Flags,
		Domain:     DecodeMemo(d.Domain),
	}, nil
}

// AccountTransactions returns the newest transactions first.
func (c *RPCClient) AccountTransactions(ctx context.Context, id string, limit int) ([]Transaction, error) {
	page, err := c.accountTx(ctx, id, limit, false, nil)
	if err != nil {
		return nil, err
	}
	return page.Transactions, nil
}

// EarliestTransactions returns the oldest transactions first.
func (c *RPCClient) EarliestTransactions(ctx context.Context, id string, limit int) (*TransactionPage, error) {
	return c.accountTx(ctx, id, limit, true, nil)
}

// RecentTransactions pages backward through history. marker is the opaque
// JSON marker returned by a previous page.
func (c *RPCClient) RecentTransactions(ctx context.Context, id string, limit int, marker string) (*TransactionPage, error) {
	var m json.RawMessage
	if marker != "" {
		m = json.RawMessage(marker)
	}
	return c.accountTx(ctx, id, limit, false, m)
}

// Trustlines returns every trust line of the account in ledger order.
func (c *RPCClient) Trustlines(ctx context.Context, id string) ([]Trustline, error) {
	var lines []Trustline
	var marker json.RawMessage
	for page := 0; page < maxLinePages; page++ {
		params := map[string]any{
			"account":      BaseAddress(id),
			"ledger_index": "validated",
			"limit":        accountLinesPerPage,
		}
		if marker != nil {
			params["marker"] = marker
		}
		var out struct {
			Lines []struct {
				Account  string `json:"account"`
				Balance  string `json:"balance"`
				Currency string `json:"currency"`
				Limit    string `json:"limit"`
			} `json:"lines"`
			Marker json.RawMessage `json:"marker"`
		}
		if err := c.call(ctx, "account_lines", params, &out); err != nil {
			return nil, err
		}
		for _, l := range out.Lines {
			lines = append(lines, Trustline{
				AssetCode:    DecodeCurrency(l.Currency),
				Counterparty: l.Account,
				Balance:      l.Balance,
				Limit:        l.Limit,
			})
		}
		if len(out.Marker) == 0 {
			break
		}
		marker = out.Marker
	}
	return lines, nil
}

// IssuedAssets lists the account's outstanding obligations.
func (c *RPCClient) IssuedAssets(ctx context.Context, id string) ([]IssuedAsset, error) {
	var out struct {
		Obligations map[string]string `json:"obligations"`
	}
	params := map[string]any{"account": BaseAddress(id), "ledger_index": "validated", "strict": true}
	if err := c.call(ctx, "gateway_balances", params, &out); err != nil {
		return nil, err
	}
	assets := make([]IssuedAsset, 0, len(out.Obligations))
	for code, amount := range out.Obligations {
		assets = append(assets, IssuedAsset{
			AssetCode: DecodeCurrency(code),
			Amount:    amount,
			Issuer:    BaseAddress(id),
		})
	}
	sortIssuedAssets(assets)
	return assets, nil
}

// AssetFirstTransactions scans the issuer's history from the beginning and
// keeps transactions touching the asset. It pages forward until limit
// matches are found, history ends, or maxAssetTxPages pages were read.
func (c *RPCClient) AssetFirstTransactions(ctx context.Context, issuer, code string, limit int) ([]Transaction, error) {
	base := BaseAddress(issuer)
	var out []Transaction
	var marker json.RawMessage
	for range maxAssetTxPages {
		page, err := c.accountTx(ctx, issuer, max(limit*2, assetTxPerPage), true, marker)
		if err != nil {
			return nil, err
		}
		want := 0
		if limit > 0 {
			want = limit - len(out)
		}
		out = append(out, FilterAssetTransactions(page.Transactions, base, code, want)...)
		if (limit > 0 && len(out) >= limit) || !page.HasMore {
			break
		}
		marker = json.RawMessage(page.Marker)
	}
	return out, nil
}

type rawTx struct {
	TransactionType string  `json:"TransactionType"`
	Account         string  `json:"Account"`
	Destination     string  `json:"Destination"`
	DestinationTag  *uint32 `json:"DestinationTag"`
	Amount          Amount  `json:"Amount"`
	LimitAmount     Amount  `json:"LimitAmount"`
	TakerGets       Amount  `json:"TakerGets"`
	Memos           []struct {
		Memo struct {
			MemoType string `json:"MemoType"`
			MemoData string `json:"MemoData"`
		} `json:"Memo"`
	} `json:"Memos"`
	Date int64  `json:"date"`
	Hash string `json:"hash"`
}

func (r rawTx) normalize() Transaction {
	tx := Transaction{
		Type:           r.TransactionType,
		Account:        r.Account,
		Destination:    r.Destination,
		DestinationTag: r.DestinationTag,
		Amount:         r.Amount,
		Hash:           r.Hash,
	}
	switch r.TransactionType {
	case TxTrustSet:
		tx.Amount = r.LimitAmount
	case TxOfferCreate:
		tx.Amount = r.TakerGets
	}
	if r.Date > 0 {
		tx.Date = time.Unix(r.Date+rippleEpoch, 0).UTC()
	}
	for _, m := range r.Memos {
		tx.Memos = append(tx.Memos, Memo{
			Type: DecodeMemo(m.Memo.MemoType),
			Data: DecodeMemo(m.Memo.MemoData),
		})
	}
	return tx
}

func (c *RPCClient) accountTx(ctx context.Context, id string, limit int, forward bool, marker json.RawMessage) (*TransactionPage, error) {
	if limit <= 0 {
		limit = 20
	}
	params := map[string]any{
		"account":          BaseAddress(id),
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            limit,
		"forward":          forward,
	}
	if marker != nil {
		params["marker"] = marker
	}
	var out struct {
		Transactions []struct {
			Tx rawTx `json:"tx"`
		} `json:"transactions"`
		Marker json.RawMessage `json:"marker"`
	}
	if err := c.call(ctx, "account_tx", params, &out); err != nil {
		return nil, err
	}
	page := &TransactionPage{Transactions: make([]Transaction, 0, len(out.Transactions))}
	for _, t := range out.Transactions {
		page.Transactions = append(page.Transactions, t.Tx.normalize())
	}
	if len(out.Marker) > 0 && string(out.Marker) != "null" {
		page.HasMore = true
		page.Marker = string(out.Marker)
	}
	return page, nil
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// call performs one JSON-RPC request with throttling, retry, circuit
// breaking, metrics and a span. out receives the "result" object.
func (c *RPCClient) call(ctx context.Context, method string, params any, out any) (err error) {
	ctx, span := traces.StartSpan(ctx, "ledger."+method, traces.Method(method))
	start := time.Now()
	defer func() {
		metrics.LedgerRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		metrics.LedgerRequestsTotal.WithLabelValues(method, outcomeLabel(err)).Inc()
		traces.End(span, err)
	}()

	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	err = c.breaker.Execute(method, func() error {
		return retry.Do(ctx, c.policy, func() error {
			return c.once(ctx, method, body, out)
		})
	}, func(err error) bool {
		return errors.Is(err, ErrNetwork)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, method, err)
	}
	return err
}

func (c *RPCClient) once(ctx context.Context, method string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %s: %v", ErrNetwork, method, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(fmt.Errorf("%w: %s: %v", ErrNetwork, method, ctx.Err()))
		}
		return fmt.Errorf("%w: %s: %v", ErrNetwork, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrNetwork, method, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: HTTP %d", ErrNetwork, method, resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("%w: %s: HTTP %d", ErrRejected, method, resp.StatusCode))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Result) == 0 {
		return retry.Permanent(fmt.Errorf("%w: %s: malformed response", ErrRejected, method))
	}

	var st rpcStatus
	_ = json.Unmarshal(envelope.Result, &st)
	if st.Status == "error" || st.Error != "" {
		return classifyRPCError(method, st)
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %s: decode result: %v", ErrRejected, method, err))
	}
	return nil
}

func classifyRPCError(method string, st rpcStatus) error {
	switch st.Error {
	case "actNotFound":
		return retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, method))
	case "slowDown", "tooBusy", "noNetwork", "noCurrent", "noClosed", "lgrNotFound":
		return fmt.Errorf("%w: %s: %s", ErrNetwork, method, st.Error)
	default:
		msg := st.ErrorMessage
		if msg == "" {
			msg = st.Error
		}
		return retry.Permanent(fmt.Errorf("%w: %s: %s", ErrRejected, method, msg))
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	default:
		return "rejected"
	}
}
