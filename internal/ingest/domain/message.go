package domain

import "time"

// SelectionFolderID is the sentinel folder id recorded for messages ingested
// from an explicit ad-hoc selection rather than a whole folder.
const SelectionFolderID = "selection"

// MessageRecord is one stored email. The remote message id is reused verbatim
// as the local primary key, so re-ingesting the same message overwrites the
// existing row instead of duplicating it.
type MessageRecord struct {
	MessageID  string    `json:"message_id" gorm:"primaryKey;column:message_id"`
	FolderID   string    `json:"folder_id" gorm:"index"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
	WebLink    string    `json:"weblink" gorm:"column:weblink"`
	Body       string    `json:"-" gorm:"type:text;not null"`
	RunID      string    `json:"run_id" gorm:"index;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (MessageRecord) TableName() string {
	return "messages"
}

// Snippet returns a short excerpt of the message body for source citations.
func (m *MessageRecord) Snippet(maxLen int) string {
	if maxLen <= 0 {
		maxLen = 200
	}
	body := m.Body
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}
