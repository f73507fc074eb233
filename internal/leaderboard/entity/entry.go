package entity

import "time"

// Entry is one leaderboard row. Balance is the cached raw token balance as a
// decimal string; wallets without a cached balance rank with "0".
type Entry struct {
	Handle        string    `json:"handle"`
	WalletAddress string    `json:"walletAddress"`
	Balance       string    `json:"balance"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
