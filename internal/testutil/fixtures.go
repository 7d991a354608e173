// Package testutil provides shared ledger fixtures for package tests.
package testutil

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/mbd888/ledgerlens/internal/ledger"
)

// Epoch is the fixed base time for fixture transactions.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Address returns a deterministic, checksum-valid classic address for n.
func Address(n int) string {
	var id [20]byte
	id[0] = 0xA5
	binary.BigEndian.PutUint64(id[12:], uint64(n))
	return ledger.EncodeAccountID(id)
}

// Payment builds a native payment of whole units xrp from one account to
// another at Epoch plus offset.
func Payment(from, to string, xrp int64, offset time.Duration) ledger.Transaction {
	return ledger.Transaction{
		Type:        ledger.TxPayment,
		Account:     from,
		Destination: to,
		Amount:      ledger.Native(strconv.FormatInt(xrp*ledger.DropsPerXRP, 10)),
		Date:        Epoch.Add(offset),
	}
}

// IssuedPayment builds an issued-currency payment.
func IssuedPayment(from, to, code, issuer, value string, offset time.Duration) ledger.Transaction {
	return ledger.Transaction{
		Type:        ledger.TxPayment,
		Account:     from,
		Destination: to,
		Amount:      ledger.Issued(value, code, issuer),
		Date:        Epoch.Add(offset),
	}
}

// TrustSet builds a trust line authorization from holder to issuer.
func TrustSet(holder, code, issuer string, offset time.Duration) ledger.Transaction {
	return ledger.Transaction{
		Type:    ledger.TxTrustSet,
		Account: holder,
		Amount:  ledger.Issued("1000000000", code, issuer),
		Date:    Epoch.Add(offset),
	}
}
