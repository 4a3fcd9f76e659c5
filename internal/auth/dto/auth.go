package dto

import (
	"time"

	authdomain "mailvault-backend/internal/auth/domain"
)

// SessionRequest carries provider credentials for opening a session. Which
// fields are required depends on the provider: graph needs an access token,
// gmail an access token (refresh token optional), imap the server fields.
type SessionRequest struct {
	Provider     string `json:"provider" binding:"required"`
	Account      string `json:"account"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IMAPServer   string `json:"imap_server"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
}

type SessionResponse struct {
	SessionToken string              `json:"session_token"`
	Session      *authdomain.Session `json:"session"`
	ExpiresAt    time.Time           `json:"expires_at"`
}
