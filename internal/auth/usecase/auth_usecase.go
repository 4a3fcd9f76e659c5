package usecase

import (
	"context"
	"errors"
	"time"

	authdomain "mailvault-backend/internal/auth/domain"
	authdto "mailvault-backend/internal/auth/dto"
	"mailvault-backend/internal/auth/repository"
	ingestdomain "mailvault-backend/internal/ingest/domain"
	"mailvault-backend/pkg/config"
	"mailvault-backend/pkg/gmail"
	"mailvault-backend/pkg/graph"
	"mailvault-backend/pkg/imap"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthUsecase defines the session lifecycle operations
type AuthUsecase interface {
	CreateSession(req *authdto.SessionRequest) (*authdto.SessionResponse, error)
	// ResolveToken validates a bearer token and returns the live session plus
	// the mail source bound to it.
	ResolveToken(tokenString string) (*authdomain.Session, ingestdomain.MailSource, error)
	EndSession(tokenString string) error
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	sessions repository.SessionStore
	config   *config.Config
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(sessions repository.SessionStore, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		sessions: sessions,
		config:   cfg,
	}
}

func (u *authUsecase) CreateSession(req *authdto.SessionRequest) (*authdto.SessionResponse, error) {
	source, err := u.buildSource(req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &authdomain.Session{
		ID:        uuid.New().String(),
		Provider:  req.Provider,
		Account:   req.Account,
		CreatedAt: now,
		ExpiresAt: now.Add(u.config.SessionExpiry),
	}
	if session.Account == "" && req.Provider == authdomain.ProviderIMAP {
		session.Account = req.IMAPUsername
	}

	token, err := u.generateSessionToken(session)
	if err != nil {
		return nil, err
	}

	u.sessions.Save(session, source)

	return &authdto.SessionResponse{
		SessionToken: token,
		Session:      session,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (u *authUsecase) buildSource(req *authdto.SessionRequest) (ingestdomain.MailSource, error) {
	switch req.Provider {
	case authdomain.ProviderGraph:
		if req.AccessToken == "" {
			return nil, errors.New("access_token is required for the graph provider")
		}
		return graph.NewClientWithToken(context.Background(), req.AccessToken), nil

	case authdomain.ProviderGmail:
		if req.AccessToken == "" {
			return nil, errors.New("access_token is required for the gmail provider")
		}
		return gmail.NewSource(u.config.GoogleClientID, u.config.GoogleClientSecret, req.AccessToken, req.RefreshToken, nil), nil

	case authdomain.ProviderIMAP:
		if req.IMAPServer == "" || req.IMAPUsername == "" || req.IMAPPassword == "" {
			return nil, errors.New("imap_server, imap_username and imap_password are required for the imap provider")
		}
		port := req.IMAPPort
		if port == 0 {
			port = 993
		}
		return imap.NewSource(req.IMAPServer, port, req.IMAPUsername, req.IMAPPassword), nil

	default:
		return nil, errors.New("unsupported provider: " + req.Provider)
	}
}

func (u *authUsecase) ResolveToken(tokenString string) (*authdomain.Session, ingestdomain.MailSource, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil, errors.New("invalid token claims")
	}

	sessionID, ok := claims["session_id"].(string)
	if !ok {
		return nil, nil, errors.New("invalid token claims")
	}

	session, source := u.sessions.Find(sessionID)
	if session == nil {
		return nil, nil, errors.New("session not found or expired")
	}

	return session, source, nil
}

func (u *authUsecase) EndSession(tokenString string) error {
	session, _, err := u.ResolveToken(tokenString)
	if err != nil {
		return err
	}
	u.sessions.Delete(session.ID)
	return nil
}

func (u *authUsecase) generateSessionToken(session *authdomain.Session) (string, error) {
	claims := jwt.MapClaims{
		"session_id": session.ID,
		"provider":   session.Provider,
		"exp":        session.ExpiresAt.Unix(),
		"iat":        session.CreatedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}
