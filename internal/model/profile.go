package model

import "time"

// DefaultBio is the bio every new profile starts with.
const DefaultBio = "Hi there! I'm a creator. Your support helps me do what I love!"

// Profile is the public creator metadata attached 1:1 to a User.
//
// PaymentID is empty when the creator has not set one; the repositories store
// that as NULL so the UNIQUE constraint only covers real identifiers.
// AvatarKey is an object key in the avatar store, not a URL: the store decides
// how the key is served (local /media path or a bucket's public URL).
type Profile struct {
	UserID    string    `json:"userId"    db:"user_id"`
	PaymentID string    `json:"paymentId" db:"payment_id"`
	Bio       string    `json:"bio"       db:"bio"`
	AvatarKey string    `json:"-"         db:"avatar_key"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// HasPaymentID reports whether supporters can generate a payment link.
func (p *Profile) HasPaymentID() bool {
	return p != nil && p.PaymentID != ""
}

// Creator joins a user with their profile, the shape every page needs.
type Creator struct {
	User    User    `json:"user"`
	Profile Profile `json:"profile"`
}
