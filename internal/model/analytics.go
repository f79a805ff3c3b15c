package model

// AnalyticsCounters holds the per-creator counters. Both only ever grow,
// except when the owner resets them to zero.
type AnalyticsCounters struct {
	UserID        string `json:"-"             db:"user_id"`
	PageViews     int64  `json:"pageViews"     db:"page_views"`
	QRGenerations int64  `json:"qrGenerations" db:"qr_generations"`
}

// Stats is derived from the donation attempt log on demand, never stored.
type Stats struct {
	TotalAmount   int64 `json:"totalAmount"`
	HighestAmount int64 `json:"highestAmount"`
}

// Dashboard is everything the creator's landing page shows.
type Dashboard struct {
	Counters AnalyticsCounters `json:"counters"`
	Stats    Stats             `json:"stats"`
	Recent   []DonationAttempt `json:"recent"`
}
