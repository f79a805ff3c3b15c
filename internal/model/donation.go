package model

import "time"

// MaxAmount caps a single attempt. It sits well above any per-transaction
// limit a payment app enforces and keeps SUM(amount) over a creator's whole
// history far from int64 overflow.
const MaxAmount int64 = 1_000_000_000

// DonationAttempt records one supporter asking for a payment QR code.
//
// Amount is in whole currency units, always > 0 and at most MaxAmount.
// Attempts are never updated; the only way they disappear is an owner reset or account deletion.
// Supporters are anonymous, so nothing links an attempt to who made it.
type DonationAttempt struct {
	ID        string    `json:"id"        db:"id"`
	UserID    string    `json:"-"         db:"user_id"`
	Amount    int64     `json:"amount"    db:"amount"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
