// Package ledger defines the data contract between the analysis engine and
// the public ledger API: account metadata, transaction history, trust lines
// and issued-asset enumeration.
//
// The engine only ever talks to a Source. RPCClient implements it against a
// rippled JSON-RPC endpoint, MemorySource serves fixtures, and RunCache
// memoizes any Source for the lifetime of one analysis run.
package ledger

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when the ledger has no record of an account.
	ErrNotFound = errors.New("ledger: account not found")
	// ErrNetwork is returned for transport failures, upstream 5xx responses
	// and open circuits. Callers treat it as a per-node data-source error.
	ErrNetwork = errors.New("ledger: network error")
	// ErrRejected is returned when the server rejects a well-formed request.
	ErrRejected = errors.New("ledger: request rejected")
)

// Transaction types the engine inspects.
const (
	TxPayment     = "Payment"
	TxTrustSet    = "TrustSet"
	TxOfferCreate = "OfferCreate"
	TxAMMCreate   = "AMMCreate"
	TxAMMDeposit  = "AMMDeposit"
)

// AccountInfo is the subset of account root fields used for scoring.
type AccountInfo struct {
	Address    string `json:"address"`
	Sequence   uint64 `json:"sequence"`
	Balance    Amount `json:"balance"`
	OwnerCount int    `json:"ownerCount"`
	Flags      uint32 `json:"flags"`
	Domain     string `json:"domain,omitempty"`
}

// Memo is a decoded transaction memo.
type Memo struct {
	Type string `json:"type,omitempty"`
	Data string `json:"data,omitempty"`
}

// Transaction is the normalized shape the engine consumes. For TrustSet
// transactions Amount carries the trust limit and the counterparty is the
// limit's issuer.
type Transaction struct {
	Type           string    `json:"type"`
	Account        string    `json:"account"`
	Destination    string    `json:"destination,omitempty"`
	DestinationTag *uint32   `json:"destinationTag,omitempty"`
	Amount         Amount    `json:"amount"`
	Memos          []Memo    `json:"memos,omitempty"`
	Date           time.Time `json:"date"`
	Hash           string    `json:"hash"`
}

// Counterparty returns the other party of tx as seen from self, or "" when
// the transaction has no second party.
func (tx Transaction) Counterparty(self string) string {
	switch {
	case tx.Type == TxTrustSet:
		if iss := tx.Amount.Issuer; iss != "" && iss != self {
			return iss
		}
		if tx.Account != self {
			return tx.Account
		}
		return ""
	case tx.Account == self:
		return tx.Destination
	case tx.Destination == self:
		return tx.Account
	case tx.Destination == "":
		return tx.Account
	default:
		return ""
	}
}

// TransactionPage is one page of account history.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	HasMore      bool          `json:"hasMore"`
	Marker       string        `json:"marker,omitempty"`
}

// Trustline is one trust line of an account. Counterparty is the peer:
// the issuer when the account holds the asset, the holder when the account
// issued it.
type Trustline struct {
	AssetCode    string `json:"assetCode"`
	Counterparty string `json:"counterparty"`
	Balance      string `json:"balance"`
	Limit        string `json:"limit"`
}

// IssuedAsset is an asset for which the account is the issuer.
type IssuedAsset struct {
	AssetCode string `json:"assetCode"`
	Amount    string `json:"amount"`
	Issuer    string `json:"issuer"`
}

// Source is the read-only ledger contract. Implementations must be safe to
// call redundantly and concurrently; the engine may issue the same request
// more than once for an account reached via two paths.
type Source interface {
	IsValidAddress(id string) bool
	AccountInfo(ctx context.Context, id string) (*AccountInfo, error)
	// AccountTransactions returns up to limit transactions, newest first.
	AccountTransactions(ctx context.Context, id string, limit int) ([]Transaction, error)
	// EarliestTransactions returns the oldest transactions first.
	EarliestTransactions(ctx context.Context, id string, limit int) (*TransactionPage, error)
	// RecentTransactions pages backward from marker ("" for the newest page).
	RecentTransactions(ctx context.Context, id string, limit int, marker string) (*TransactionPage, error)
	Trustlines(ctx context.Context, id string) ([]Trustline, error)
	IssuedAssets(ctx context.Context, id string) ([]IssuedAsset, error)
	// AssetFirstTransactions returns the earliest transactions of the issuer
	// that move or authorize the given asset, oldest first.
	AssetFirstTransactions(ctx context.Context, issuer, code string, limit int) ([]Transaction, error)
}

// FilterAssetTransactions keeps, in order, the transactions of txs that move
// or authorize the asset code issued by issuer, up to limit.
func FilterAssetTransactions(txs []Transaction, issuer, code string, limit int) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if tx.Amount.IsNative() || tx.Amount.Issuer != issuer {
			continue
		}
		if tx.Amount.Code() != code && tx.Amount.Currency != code {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func sortIssuedAssets(assets []IssuedAsset) {
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].AssetCode != assets[j].AssetCode {
			return assets[i].AssetCode < assets[j].AssetCode
		}
		return assets[i].Issuer < assets[j].Issuer
	})
}
