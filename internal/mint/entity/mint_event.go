package entity

import "time"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// ParseStatus returns the status named by s (already trimmed/lower-cased by
// callers) and whether it is one of the four known values.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusQueued, StatusSubmitted, StatusConfirmed, StatusFailed:
		return st, true
	}
	return "", false
}

// MintEvent is a row of the `mint_events` table: one request to credit
// tokens to a wallet and its progress through the signer worker.
type MintEvent struct {
	ID               string     `db:"id" json:"id"`
	ToWallet         string     `db:"to_wallet" json:"toWallet"`
	AmountRaw        string     `db:"amount_raw" json:"amountRaw"`
	ChainID          int64      `db:"chain_id" json:"chainId"`
	Status           Status     `db:"status" json:"status"`
	Reason           string     `db:"reason" json:"reason"`
	IdempotencyKey   string     `db:"idempotency_key" json:"idempotencyKey"`
	TxHash           *string    `db:"tx_hash" json:"txHash"`
	RequestedBySub   *string    `db:"requested_by_sub" json:"requestedBySub"`
	RequestedByEmail *string    `db:"requested_by_email" json:"requestedByEmail"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	SubmittedAt      *time.Time `db:"submitted_at" json:"submittedAt"`
	ConfirmedAt      *time.Time `db:"confirmed_at" json:"confirmedAt"`
	FailedAt         *time.Time `db:"failed_at" json:"failedAt"`
	FailureReason    *string    `db:"failure_reason" json:"failureReason"`
}

// Filter narrows a mint event listing. Empty fields are ignored.
type Filter struct {
	Status         Status
	ToWallet       string
	IdempotencyKey string
	Limit          int
}
