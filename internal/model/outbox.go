package model

// OutboxEntry is a result whose delivery to the exam backend failed and is
// waiting to be retried.
type OutboxEntry struct {
	LedgerID string `json:"ledger_id,omitempty"`
	// Token is the student's bearer token at submission time. It is cleared
	// once the entry is dead-lettered or the token has expired.
	Token string `json:"token,omitempty"`
	// TokenExpiresAt is the token's exp claim; zero when it could not be read.
	TokenExpiresAt Timestamp `json:"token_expires_at"`
	Result         Result    `json:"result"`
	Attempts       int       `json:"attempts"`
	NotBefore      Timestamp `json:"not_before"`
}
