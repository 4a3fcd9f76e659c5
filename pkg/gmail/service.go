package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"mailvault-backend/internal/ingest/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback invoked when the access token is refreshed
type TokenUpdateFunc func(*oauth2.Token) error

// Source is a Gmail-backed mail source implementing domain.MailSource.
// Labels play the role of folders.
type Source struct {
	clientID     string
	clientSecret string
	accessToken  string
	refreshToken string
	onRefresh    TokenUpdateFunc
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewSource creates a Gmail mail source for one account session.
func NewSource(clientID, clientSecret, accessToken, refreshToken string, onRefresh TokenUpdateFunc) *Source {
	return &Source{
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		onRefresh:    onRefresh,
	}
}

func (s *Source) service(ctx context.Context) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if s.refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: s.onRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return srv, nil
}

// ListFolders maps Gmail labels to folders. MessagesTotal is the approximate
// count Gmail reports per label.
func (s *Source) ListFolders(ctx context.Context) ([]*domain.Folder, error) {
	srv, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	labelsResp, err := srv.Users.Labels.List("me").Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve labels: %v", err)
	}

	folders := make([]*domain.Folder, 0, len(labelsResp.Labels))
	for _, label := range labelsResp.Labels {
		// Only include system labels and user labels
		if label.Type != "system" && label.Type != "user" {
			continue
		}
		folders = append(folders, &domain.Folder{
			ID:             label.Id,
			DisplayName:    label.Name,
			TotalItemCount: label.MessagesTotal,
		})
	}

	return folders, nil
}

// ListMessages returns one page of a label's messages, newest first.
func (s *Source) ListMessages(ctx context.Context, folderID string, pageSize int, pageToken string) (*domain.MessagePage, error) {
	srv, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 500 {
		pageSize = 500 // Gmail API maximum
	}

	listQuery := srv.Users.Messages.List("me").LabelIds(folderID).MaxResults(int64(pageSize))
	if pageToken != "" {
		listQuery = listQuery.PageToken(pageToken)
	}

	messagesResp, err := listQuery.Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %v", err)
	}

	// Fetch full messages in parallel with a small concurrency cap, then
	// restore newest-first ordering.
	type fetchResult struct {
		record *domain.MessageRecord
		err    error
	}
	resultChan := make(chan fetchResult, len(messagesResp.Messages))
	semaphore := make(chan struct{}, 10)

	for _, msg := range messagesResp.Messages {
		go func(msgID string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fullMsg, err := srv.Users.Messages.Get("me", msgID).Format("full").Do()
			if err != nil {
				resultChan <- fetchResult{nil, err}
				return
			}
			resultChan <- fetchResult{convertMessage(fullMsg, folderID), nil}
		}(msg.Id)
	}

	records := make([]*domain.MessageRecord, 0, len(messagesResp.Messages))
	for range messagesResp.Messages {
		result := <-resultChan
		if result.err != nil {
			return nil, fmt.Errorf("unable to retrieve message details: %v", result.err)
		}
		records = append(records, result.record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ReceivedAt.After(records[j].ReceivedAt)
	})

	return &domain.MessagePage{
		Messages:      records,
		NextPageToken: messagesResp.NextPageToken,
	}, nil
}

// GetMessagesByIDs resolves full records for an explicit selection.
func (s *Source) GetMessagesByIDs(ctx context.Context, ids []string) ([]*domain.MessageRecord, error) {
	srv, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*domain.MessageRecord, 0, len(ids))
	for _, id := range ids {
		msg, err := srv.Users.Messages.Get("me", id).Format("full").Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve message %s: %v", id, err)
		}
		records = append(records, convertMessage(msg, domain.SelectionFolderID))
	}

	return records, nil
}

// ResolveWebLink returns the Gmail deep-link for a message.
func (s *Source) ResolveWebLink(ctx context.Context, id string) (string, error) {
	return webLink(id), nil
}

func webLink(id string) string {
	return "https://mail.google.com/mail/u/0/#all/" + id
}

func convertMessage(msg *gmail.Message, folderID string) *domain.MessageRecord {
	from := getHeader(msg.Payload.Headers, "From")
	// Extract address from "Name <email@example.com>" format
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from, ">"); end > start {
			from = from[start+1 : end]
		}
	}

	body, isHTML := getMessageBody(msg.Payload)
	if isHTML {
		body = stripHTML(body)
	}

	return &domain.MessageRecord{
		MessageID:  msg.Id,
		FolderID:   folderID,
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Sender:     from,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
		WebLink:    webLink(msg.Id),
		Body:       body,
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func getMessageBody(payload *gmail.MessagePart) (string, bool) {
	// If the payload itself is the body
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data), payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.MimeType == "text/plain" {
				if part.Body != nil && part.Body.Data != "" {
					data, err := base64.URLEncoding.DecodeString(part.Body.Data)
					if err == nil {
						plainBody = string(data)
					}
				}
			} else if part.MimeType == "text/html" {
				if part.Body != nil && part.Body.Data != "" {
					data, err := base64.URLEncoding.DecodeString(part.Body.Data)
					if err == nil {
						htmlBody = string(data)
					}
				}
			}

			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	// Plain text preferred; the index wants plain-text extraction.
	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func stripHTML(html string) string {
	text := htmlTagRe.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	return strings.Join(strings.Fields(text), " ")
}
