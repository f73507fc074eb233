// Package chain holds the address and hash formats used by the token contract
// and the metadata of the chain it is deployed on.
package chain

import (
	"encoding/hex"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/sha3"
)

const (
	walletTag = "eth_addr"
	txHashTag = "len=66,startswith=0x,hexadecimal"
)

var validate = validator.New()

// Meta describes the chain mint events are recorded against.
type Meta struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// IsWallet reports whether s is 0x followed by 40 hex characters, any case.
func IsWallet(s string) bool { return validate.Var(s, walletTag) == nil }

// IsTxHash reports whether s is 0x followed by 64 hex characters, any case.
func IsTxHash(s string) bool { return validate.Var(s, txHashTag) == nil }

// NormalizeWallet trims and lower-cases an address. ok is false when the
// input is not a wallet address.
func NormalizeWallet(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !IsWallet(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

// ChecksumAddress renders a wallet address in EIP-55 mixed case.
func ChecksumAddress(addr string) string {
	lower, ok := NormalizeWallet(addr)
	if !ok {
		return addr
	}
	hexPart := lower[2:]
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexPart))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(hexPart)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}
