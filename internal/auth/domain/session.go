package domain

import "time"

// Supported mail providers.
const (
	ProviderGraph = "graph"
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Session binds one authenticated mail account to a bearer token. Credentials
// live only in memory for the session's lifetime and are never written to disk.
type Session struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}
