package model

import "time"

type LoginOutcome string

const (
	OutcomeGranted     LoginOutcome = "granted"
	OutcomeDenied      LoginOutcome = "denied"
	OutcomeRejected    LoginOutcome = "rejected"
	OutcomeUnavailable LoginOutcome = "unavailable"
	OutcomeError       LoginOutcome = "error"
)

// LoginAttempt is the audit record of one login request. It never holds the
// password or the risk token.
type LoginAttempt struct {
	Username  string       `firestore:"username"`
	Outcome   LoginOutcome `firestore:"outcome"`
	Score     float64      `firestore:"score"`
	Action    string       `firestore:"action"`
	Bypassed  bool         `firestore:"bypassed"`
	ClientIP  string       `firestore:"clientIp"`
	UserAgent string       `firestore:"userAgent"`
	RequestID string       `firestore:"requestId"`
	CreatedAt time.Time    `firestore:"createdAt"`
}
