package models

import "time"

// Unlimited is the sentinel used for Limit and Remaining when a caller is
// not subject to quota.
const Unlimited = -1

// QuotaStatus is the outcome of a quota check.
type QuotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
}

// QuotaRecord is the usage of one identifier within one window.
type QuotaRecord struct {
	Identifier  string    `json:"identifier"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
}

// IsUnlimited reports whether the record carries the unlimited sentinel.
func (r QuotaRecord) IsUnlimited() bool {
	return r.Limit == Unlimited
}
