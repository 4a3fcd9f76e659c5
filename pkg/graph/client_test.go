package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailvault-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(server *httptest.Server) *Client {
	c := NewClientWithToken(context.Background(), "test-token")
	c.root = server.URL
	return c
}

func TestListFoldersPaginates(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		page := folderListResponse{}
		if r.URL.Query().Get("page") == "2" {
			page.Value = []graphFolder{{ID: "archive", DisplayName: "Archive", TotalItemCount: 300}}
		} else {
			page.Value = []graphFolder{
				{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 42},
				{ID: "sent", DisplayName: "Sent Items", TotalItemCount: 7},
			}
			page.NextLink = server.URL + "/me/mailFolders?page=2"
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	folders, err := testClient(server).ListFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 3)
	assert.Equal(t, "inbox", folders[0].ID)
	assert.EqualValues(t, 42, folders[0].TotalItemCount)
	assert.Equal(t, "archive", folders[2].ID)
}

func TestListMessagesFirstPageAndNext(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			// First page: built from folder id and page size.
			assert.Contains(t, r.URL.Path, "/me/mailFolders/inbox/messages")
			assert.Equal(t, "2", r.URL.Query().Get("$top"))
			assert.Equal(t, "receivedDateTime desc", r.URL.Query().Get("$orderby"))

			resp := messageListResponse{
				Value: []graphMessage{
					makeGraphMessage("m1", "Newest"),
					makeGraphMessage("m2", "Older"),
				},
				NextLink: server.URL + "/me/mailFolders/inbox/messages?page=2",
			}
			json.NewEncoder(w).Encode(resp)
			return
		}

		resp := messageListResponse{
			Value: []graphMessage{makeGraphMessage("m3", "Oldest")},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := testClient(server)

	page, err := client.ListMessages(context.Background(), "inbox", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m1", page.Messages[0].MessageID)
	assert.Equal(t, "Newest", page.Messages[0].Subject)
	assert.Equal(t, "inbox", page.Messages[0].FolderID)
	assert.Equal(t, "sender@example.com", page.Messages[0].Sender)
	require.NotEmpty(t, page.NextPageToken)

	// The token is the nextLink verbatim.
	page2, err := client.ListMessages(context.Background(), "inbox", 2, page.NextPageToken)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 1)
	assert.Equal(t, "m3", page2.Messages[0].MessageID)
	assert.Empty(t, page2.NextPageToken)
}

func TestGetMessagesByIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/messages/m1":
			json.NewEncoder(w).Encode(makeGraphMessage("m1", "First"))
		case "/me/messages/m2":
			json.NewEncoder(w).Encode(makeGraphMessage("m2", "Second"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	records, err := testClient(server).GetMessagesByIDs(context.Background(), []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "First", records[0].Subject)
	assert.Equal(t, domain.SelectionFolderID, records[0].FolderID)
}

func TestGetMessagesByIDsPropagatesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"ErrorItemNotFound"}}`)
	}))
	defer server.Close()

	_, err := testClient(server).GetMessagesByIDs(context.Background(), []string{"ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveWebLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages/m1", r.URL.Path)
		json.NewEncoder(w).Encode(graphMessage{ID: "m1", WebLink: "https://outlook.example.com/m1"})
	}))
	defer server.Close()

	link, err := testClient(server).ResolveWebLink(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "https://outlook.example.com/m1", link)
}

func TestBodyFallsBackToPreview(t *testing.T) {
	m := makeGraphMessage("m1", "Subject")
	m.Body.Content = ""
	m.BodyPreview = "preview text"

	rec := toRecord(&m, "inbox")
	assert.Equal(t, "preview text", rec.Body)
}

func makeGraphMessage(id, subject string) graphMessage {
	m := graphMessage{
		ID:               id,
		Subject:          subject,
		WebLink:          "https://outlook.example.com/" + id,
		ReceivedDateTime: time.Now().UTC().Format(time.RFC3339),
	}
	m.Body.ContentType = "text"
	m.Body.Content = "full body of " + id
	m.From.EmailAddress.Address = "sender@example.com"
	m.From.EmailAddress.Name = "Sender"
	return m
}
