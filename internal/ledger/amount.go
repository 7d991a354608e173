package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DropsPerXRP converts native drops to whole units.
const DropsPerXRP = 1_000_000

// NativeCurrency is the currency code reported for native amounts.
const NativeCurrency = "XRP"

// Amount is either a native amount in drops or an issued-currency amount.
// On the wire the former is a bare string and the latter an object; both
// decode into this one type so call sites never branch on the JSON shape.
type Amount struct {
	Drops    string `json:"-"`
	Value    string `json:"value,omitempty"`
	Currency string `json:"currency,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
}

// Native builds a native amount from a drops string.
func Native(drops string) Amount {
	return Amount{Drops: drops}
}

// Issued builds an issued-currency amount.
func Issued(value, currency, issuer string) Amount {
	return Amount{Value: value, Currency: currency, Issuer: issuer}
}

// IsNative reports whether a is denominated in the native currency.
func (a Amount) IsNative() bool {
	return a.Currency == "" && a.Issuer == ""
}

// IsZero reports whether a carries no amount at all.
func (a Amount) IsZero() bool {
	return a.Drops == "" && a.Value == ""
}

// Code returns the human-readable currency code.
func (a Amount) Code() string {
	if a.IsNative() {
		return NativeCurrency
	}
	return DecodeCurrency(a.Currency)
}

// Normalize returns the amount as a non-negative float in whole units.
// Drops are divided by DropsPerXRP. Malformed, negative or non-finite
// values normalize to 0.
func (a Amount) Normalize() float64 {
	raw, scale := a.Value, 1.0
	if a.IsNative() {
		raw, scale = a.Drops, DropsPerXRP
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v / scale
}

// Literal returns the amount as written on the ledger, used by the
// round-number heuristic. Native amounts are rendered in whole units.
func (a Amount) Literal() string {
	if a.IsNative() {
		return strconv.FormatFloat(a.Normalize(), 'f', -1, 64)
	}
	return strings.TrimSpace(a.Value)
}

// UnmarshalJSON accepts either "123456" (drops) or
// {"value":"1.5","currency":"USD","issuer":"r..."}.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if data[0] == '"' {
		var drops string
		if err := json.Unmarshal(data, &drops); err != nil {
			return fmt.Errorf("native amount: %w", err)
		}
		*a = Native(drops)
		return nil
	}
	var obj struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("issued amount: %w", err)
	}
	*a = Issued(obj.Value, obj.Currency, obj.Issuer)
	return nil
}

// MarshalJSON writes the same two shapes UnmarshalJSON accepts.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.IsNative() {
		return json.Marshal(a.Drops)
	}
	return json.Marshal(struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
	}{a.Value, a.Currency, a.Issuer})
}

// DecodeCurrency turns a 40-hex-character currency code into its ASCII
// form when it holds printable text. Three-letter codes pass through.
func DecodeCurrency(code string) string {
	if len(code) != 40 {
		return code
	}
	raw, err := hex.DecodeString(code)
	if err != nil {
		return code
	}
	raw = bytes.TrimRight(raw, "\x00")
	if len(raw) == 0 {
		return code
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return code
		}
	}
	return string(raw)
}

// DecodeMemo decodes a hex-encoded memo field. Undecodable input is
// returned unchanged so keyword matching still sees it.
func DecodeMemo(s string) string {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return s
	}
	return string(raw)
}
