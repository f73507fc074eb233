package entity

import "time"

// User represents a row in the `users` table: one wallet and the public
// handle it onboarded with.
type User struct {
	ID            string    `db:"id"`
	WalletAddress string    `db:"wallet_address"`
	Handle        string    `db:"handle"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ListView is the admin projection of a user.
type ListView struct {
	Handle          string    `db:"handle" json:"handle"`
	WalletAddress   string    `db:"wallet_address" json:"walletAddress"`
	ChecksumAddress string    `db:"-" json:"checksumAddress"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}
