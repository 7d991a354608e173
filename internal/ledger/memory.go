package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryAccount is the fixture state of one account.
type MemoryAccount struct {
	Info *AccountInfo
	// Transactions in ledger order, oldest first.
	Transactions []Transaction
	Trustlines   []Trustline
	Issued       []IssuedAsset
}

// MemorySource is an in-memory Source for tests and offline demos.
// Errors can be injected per account.
type MemorySource struct {
	mu       sync.Mutex
	accounts map[string]*MemoryAccount
	failures map[string]error
	calls    map[string]int
}

// NewMemorySource creates an empty fixture source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		accounts: make(map[string]*MemoryAccount),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddAccount registers an account with the given sequence. It returns the
// fixture so callers can attach trust lines and issued assets.
func (m *MemorySource) AddAccount(address string, sequence uint64) *MemoryAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(address)
	a.Info = &AccountInfo{Address: address, Sequence: sequence, Balance: Native("20000000")}
	return a
}

// AddTransaction records tx in the history of every account it touches.
func (m *MemorySource) AddTransaction(tx Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.Hash == "" {
		tx.Hash = fmt.Sprintf("%064X", len(m.accounts)*1_000_003+m.txCount())
	}
	seen := make(map[string]bool, 3)
	for _, addr := range []string{tx.Account, tx.Destination, tx.Amount.Issuer} {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		a := m.account(addr)
		a.Transactions = append(a.Transactions, tx)
	}
}

// AddTrustline records a trust line from holder to issuer on both sides.
func (m *MemorySource) AddTrustline(holder, issuer, code, balance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(holder).Trustlines = append(m.account(holder).Trustlines, Trustline{
		AssetCode: code, Counterparty: issuer, Balance: balance, Limit: "1000000000",
	})
	m.account(issuer).Trustlines = append(m.account(issuer).Trustlines, Trustline{
		AssetCode: code, Counterparty: holder, Balance: "-" + balance, Limit: "0",
	})
}

// AddIssuedAsset records an outstanding obligation of issuer.
func (m *MemorySource) AddIssuedAsset(issuer, code, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(issuer)
	a.Issued = append(a.Issued, IssuedAsset{AssetCode: code, Amount: amount, Issuer: issuer})
}

// Fail makes every request for address return err.
func (m *MemorySource) Fail(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[address] = err
}

// Calls returns how many requests of method were served for address.
func (m *MemorySource) Calls(method, address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+"|"+address]
}

func (m *MemorySource) account(address string) *MemoryAccount {
	a, ok := m.accounts[address]
	if !ok {
		a = &MemoryAccount{}
		m.accounts[address] = a
	}
	return a
}

func (m *MemorySource) txCount() int {
	n := 0
	for _, a := range m.accounts {
		n += len(a.Transactions)
	}
	return n
}

// lookup returns the fixture for id, recording the call. Caller must not
// hold m.mu.
func (m *MemorySource) lookup(method, id string) (*MemoryAccount, error) {
	addr := BaseAddress(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method+"|"+addr]++
	if err, ok := m.failures[addr]; ok {
		return nil, err
	}
	a, ok := m.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return a, nil
}

func (m *MemorySource) IsValidAddress(id string) bool {
	return ValidAddress(BaseAddress(id))
}

func (m *MemorySource) AccountInfo(_ context.Context, id string) (*AccountInfo, error) {
	a, err := m.lookup("account_info", id)
	if err != nil {
		return nil, err
	}
	if a.Info == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, BaseAddress(id))
	}
	info := *a.Info
	return &info, nil
}

func (m *MemorySource) AccountTransactions(_ context.Context, id string, limit int) ([]Transaction, error) {
	a, err := m.lookup("account_tx", id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for i := len(a.Transactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, a.Transactions[i])
	}
	return out, nil
}

func (m *MemorySource) EarliestTransactions(_ context.Context, id string, limit int) (*TransactionPage, error) {
	a, err := m.lookup("account_tx_forward", id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(a.Transactions)
	if limit > 0 && limit < n {
		n = limit
	}
	page := &TransactionPage{Transactions: append([]Transaction(nil), a.Transactions[:n]...)}
	if n < len(a.Transactions) {
		page.HasMore = true
		page.Marker = strconv.Itoa(n)
	}
	return page, nil
}

// RecentTransactions uses the count of already returned transactions as
// its marker.
func (m *MemorySource) RecentTransactions(_ context.Context, id string, limit int, marker string) (*TransactionPage, error) {
	a, err := m.lookup("account_tx", id)
	if err != nil {
		return nil, err
	}
	skip := 0
	if marker != "" {
		if skip, err = strconv.Atoi(marker); err != nil || skip < 0 {
			return nil, fmt.Errorf("%w: bad marker %q", ErrRejected, marker)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	page := &TransactionPage{}
	i := len(a.Transactions) - 1 - skip
	for ; i >= 0 && (limit <= 0 || len(page.Transactions) < limit); i-- {
		page.Transactions = append(page.Transactions, a.Transactions[i])
	}
	if i >= 0 {
		page.HasMore = true
		page.Marker = strconv.Itoa(skip + len(page.Transactions))
	}
	return page, nil
}

func (m *MemorySource) Trustlines(_ context.Context, id string) ([]Trustline, error) {
	a, err := m.lookup("account_lines", id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Trustline(nil), a.Trustlines...), nil
}

func (m *MemorySource) IssuedAssets(_ context.Context, id string) ([]IssuedAsset, error) {
	a, err := m.lookup("gateway_balances", id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]IssuedAsset(nil), a.Issued...)
	sortIssuedAssets(out)
	return out, nil
}

func (m *MemorySource) AssetFirstTransactions(_ context.Context, issuer, code string, limit int) ([]Transaction, error) {
	a, err := m.lookup("asset_first_tx", issuer)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return FilterAssetTransactions(a.Transactions, BaseAddress(issuer), code, limit), nil
}
