package models

import "time"

// VerificationCode is the single live code issued to an address.
type VerificationCode struct {
	Address  string    `json:"email"`
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Age reports how long ago the code was issued.
func (c VerificationCode) Age(now time.Time) time.Duration {
	return now.Sub(c.IssuedAt)
}
