package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWallet(t *testing.T) {
	assert.True(t, IsWallet("0x"+strings.Repeat("a", 40)))
	assert.True(t, IsWallet("0x"+strings.Repeat("A", 40)))
	assert.False(t, IsWallet("0x"+strings.Repeat("a", 39)))
	assert.False(t, IsWallet("0x"+strings.Repeat("a", 41)))
	assert.False(t, IsWallet(strings.Repeat("a", 42)))
	assert.False(t, IsWallet("0x"+strings.Repeat("g", 40)))
	assert.False(t, IsWallet(""))
	// mixed case is accepted without enforcing the checksum
	assert.True(t, IsWallet("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD"))
}

func TestIsTxHash(t *testing.T) {
	assert.True(t, IsTxHash("0x"+strings.Repeat("ab", 32)))
	assert.False(t, IsTxHash("0x"+strings.Repeat("ab", 20)))
	assert.False(t, IsTxHash(strings.Repeat("ab", 33)))
	assert.False(t, IsTxHash("0X"+strings.Repeat("ab", 32)))
	assert.False(t, IsTxHash("0x"+strings.Repeat("zz", 32)))
	assert.False(t, IsTxHash(""))
}

func TestNormalizeWallet(t *testing.T) {
	got, ok := NormalizeWallet("  0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA ")
	assert.True(t, ok)
	assert.Equal(t, "0x"+strings.Repeat("a", 40), got)

	_, ok = NormalizeWallet("0xnope")
	assert.False(t, ok)
}

func TestChecksumAddress(t *testing.T) {
	// reference vectors from EIP-55
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		assert.Equal(t, want, ChecksumAddress(strings.ToLower(want)))
	}
	assert.Equal(t, "nope", ChecksumAddress("nope"))
}
