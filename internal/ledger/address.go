package ledger

import (
	"bytes"
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// rippleAlphabet is the base58 dictionary used for classic addresses.
var rippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

const (
	accountIDPrefix = 0x00
	accountIDLen    = 20
	checksumLen     = 4
)

// ValidAddress reports whether s is a well-formed classic address:
// base58 (ripple alphabet) of 0x00 || 20-byte account id || 4-byte
// double-SHA256 checksum.
func ValidAddress(s string) bool {
	if len(s) < 25 || len(s) > 35 || s[0] != 'r' {
		return false
	}
	raw, err := base58.DecodeAlphabet(s, rippleAlphabet)
	if err != nil || len(raw) != 1+accountIDLen+checksumLen {
		return false
	}
	if raw[0] != accountIDPrefix {
		return false
	}
	payload, sum := raw[:1+accountIDLen], raw[1+accountIDLen:]
	return bytes.Equal(checksum(payload), sum)
}

// EncodeAccountID renders a 20-byte account id as a classic address.
func EncodeAccountID(id [accountIDLen]byte) string {
	payload := make([]byte, 0, 1+accountIDLen+checksumLen)
	payload = append(payload, accountIDPrefix)
	payload = append(payload, id[:]...)
	payload = append(payload, checksum(payload)...)
	return base58.EncodeAlphabet(payload, rippleAlphabet)
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}

// SplitTag splits "address:tag" into its parts. ok is false when id has no
// well-formed tag suffix.
func SplitTag(id string) (address string, tag uint32, ok bool) {
	i := strings.LastIndexByte(id, ':')
	if i < 0 {
		return id, 0, false
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil {
		return id, 0, false
	}
	return id[:i], uint32(n), true
}

// BaseAddress strips an optional ":tag" suffix.
func BaseAddress(id string) string {
	addr, _, _ := SplitTag(id)
	return addr
}

// WithTag appends a destination tag to an address.
func WithTag(address string, tag uint32) string {
	return address + ":" + strconv.FormatUint(uint64(tag), 10)
}
