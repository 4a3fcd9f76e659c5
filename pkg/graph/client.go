package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mailvault-backend/internal/ingest/domain"

	"golang.org/x/oauth2"
)

const defaultGraphRoot = "https://graph.microsoft.com/v1.0"

const messageSelectFields = "id,subject,bodyPreview,body,webLink,receivedDateTime,from"

// Client is a Microsoft Graph mail source. Token acquisition happens outside;
// the client only consumes an oauth2.TokenSource.
type Client struct {
	root       string
	httpClient *http.Client
}

// NewClient creates a Graph mail source authenticated by tokenSource.
func NewClient(ctx context.Context, tokenSource oauth2.TokenSource) *Client {
	httpClient := oauth2.NewClient(ctx, tokenSource)
	httpClient.Timeout = 30 * time.Second
	return &Client{
		root:       defaultGraphRoot,
		httpClient: httpClient,
	}
}

// NewClientWithToken creates a Graph mail source from a raw access token.
func NewClientWithToken(ctx context.Context, accessToken string) *Client {
	return NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
}

type graphFolder struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	TotalItemCount int64  `json:"totalItemCount"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Body        struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	WebLink          string         `json:"webLink"`
	ReceivedDateTime string         `json:"receivedDateTime"`
	From             graphRecipient `json:"from"`
}

type folderListResponse struct {
	Value    []graphFolder `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

type messageListResponse struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// ListFolders returns the account's mail folders with the item counts Graph
// reports. The counts can be stale; callers treat them as approximate.
func (c *Client) ListFolders(ctx context.Context) ([]*domain.Folder, error) {
	reqURL := c.root + "/me/mailFolders?$top=200&$select=id,displayName,parentFolderId,childFolderCount,totalItemCount"

	var folders []*domain.Folder
	for reqURL != "" {
		var page folderListResponse
		if err := c.getJSON(ctx, reqURL, &page); err != nil {
			return nil, fmt.Errorf("failed to list folders: %w", err)
		}
		for _, f := range page.Value {
			folders = append(folders, &domain.Folder{
				ID:             f.ID,
				DisplayName:    f.DisplayName,
				TotalItemCount: f.TotalItemCount,
			})
		}
		reqURL = page.NextLink
	}

	return folders, nil
}

// ListMessages returns one page of folderID, newest first. pageToken is the
// @odata.nextLink from a prior page, or empty for the first page.
func (c *Client) ListMessages(ctx context.Context, folderID string, pageSize int, pageToken string) (*domain.MessagePage, error) {
	if pageSize <= 0 {
		pageSize = 25
	}

	reqURL := pageToken
	if reqURL == "" {
		reqURL = fmt.Sprintf(
			"%s/me/mailFolders/%s/messages?$top=%d&$select=%s&$orderby=%s",
			c.root,
			url.PathEscape(folderID),
			pageSize,
			url.QueryEscape(messageSelectFields),
			url.QueryEscape("receivedDateTime desc"),
		)
	}

	var page messageListResponse
	if err := c.getJSON(ctx, reqURL, &page); err != nil {
		return nil, fmt.Errorf("failed to list messages in folder %s: %w", folderID, err)
	}

	messages := make([]*domain.MessageRecord, 0, len(page.Value))
	for _, m := range page.Value {
		messages = append(messages, toRecord(&m, folderID))
	}

	return &domain.MessagePage{
		Messages:      messages,
		NextPageToken: page.NextLink,
	}, nil
}

// GetMessagesByIDs resolves full records for an explicit selection. Graph has
// no batch read for arbitrary ids, so messages are fetched one by one.
func (c *Client) GetMessagesByIDs(ctx context.Context, ids []string) ([]*domain.MessageRecord, error) {
	records := make([]*domain.MessageRecord, 0, len(ids))
	for _, id := range ids {
		reqURL := fmt.Sprintf("%s/me/messages/%s?$select=%s", c.root, url.PathEscape(id), url.QueryEscape(messageSelectFields))

		var m graphMessage
		if err := c.getJSON(ctx, reqURL, &m); err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", id, err)
		}
		records = append(records, toRecord(&m, domain.SelectionFolderID))
	}
	return records, nil
}

// ResolveWebLink returns a fresh deep-link for a message.
func (c *Client) ResolveWebLink(ctx context.Context, id string) (string, error) {
	reqURL := fmt.Sprintf("%s/me/messages/%s?$select=id,webLink", c.root, url.PathEscape(id))

	var m graphMessage
	if err := c.getJSON(ctx, reqURL, &m); err != nil {
		return "", fmt.Errorf("failed to resolve weblink for %s: %w", id, err)
	}
	return m.WebLink, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graph API error (%d): %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}

func toRecord(m *graphMessage, folderID string) *domain.MessageRecord {
	body := m.Body.Content
	if body == "" {
		body = m.BodyPreview
	}

	receivedAt, err := time.Parse(time.RFC3339, m.ReceivedDateTime)
	if err != nil {
		receivedAt = time.Time{}
	}

	return &domain.MessageRecord{
		MessageID:  m.ID,
		FolderID:   folderID,
		Subject:    m.Subject,
		Sender:     m.From.EmailAddress.Address,
		ReceivedAt: receivedAt,
		WebLink:    m.WebLink,
		Body:       body,
	}
}
