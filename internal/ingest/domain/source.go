package domain

import "context"

// Folder describes a remote mail folder. TotalItemCount is the count reported
// by the remote source and may be stale or approximate.
type Folder struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	TotalItemCount int64  `json:"total_item_count"`
}

// MessagePage is one page of a folder listing. NextPageToken is an opaque
// continuation token; empty means the folder is exhausted.
type MessagePage struct {
	Messages      []*MessageRecord
	NextPageToken string
}

// MailSource is the remote mail provider consumed by the ingestion
// orchestrator. Implementations exist for Microsoft Graph, Gmail and IMAP.
type MailSource interface {
	// ListFolders returns the account's mail folders with approximate counts.
	ListFolders(ctx context.Context) ([]*Folder, error)
	// ListMessages returns one page of a folder, newest first.
	ListMessages(ctx context.Context, folderID string, pageSize int, pageToken string) (*MessagePage, error)
	// GetMessagesByIDs resolves full message records for an explicit selection.
	GetMessagesByIDs(ctx context.Context, ids []string) ([]*MessageRecord, error)
	// ResolveWebLink returns a fresh deep-link for a message.
	ResolveWebLink(ctx context.Context, id string) (string, error)
}
