package imap

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mailvault-backend/internal/ingest/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Source is an IMAP-backed mail source. Message ids are "<mailbox>/<uid>"
// because IMAP UIDs are only stable within one mailbox. IMAP has no web
// deep-links, so ResolveWebLink returns an empty string.
type Source struct {
	server   string
	port     int
	username string
	password string
}

// NewSource creates an IMAP mail source for one account.
func NewSource(server string, port int, username, password string) *Source {
	if port <= 0 {
		port = 993
	}
	return &Source{
		server:   server,
		port:     port,
		username: username,
		password: password,
	}
}

func (s *Source) connect() (*client.Client, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", s.server, s.port), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	return c, nil
}

// ListFolders lists mailboxes with their message counts.
func (s *Source) ListFolders(ctx context.Context) ([]*domain.Folder, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	folders := make([]*domain.Folder, 0, len(names))
	for _, name := range names {
		status, err := c.Status(name, []imap.StatusItem{imap.StatusMessages})
		if err != nil {
			// Some servers refuse STATUS on special mailboxes; report zero.
			folders = append(folders, &domain.Folder{ID: name, DisplayName: name})
			continue
		}
		folders = append(folders, &domain.Folder{
			ID:             name,
			DisplayName:    name,
			TotalItemCount: int64(status.Messages),
		})
	}

	return folders, nil
}

// ListMessages pages through folderID newest-first. The page token is the
// highest sequence number of the next (older) page.
func (s *Source) ListMessages(ctx context.Context, folderID string, pageSize int, pageToken string) (*domain.MessagePage, error) {
	if pageSize <= 0 {
		pageSize = 25
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mbox, err := c.Select(folderID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", folderID, err)
	}

	upper := mbox.Messages
	if pageToken != "" {
		parsed, err := strconv.ParseUint(pageToken, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		upper = uint32(parsed)
	}
	if upper == 0 {
		return &domain.MessagePage{Messages: []*domain.MessageRecord{}}, nil
	}

	lower := uint32(1)
	if upper > uint32(pageSize) {
		lower = upper - uint32(pageSize) + 1
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(lower, upper)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, pageSize)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	records := make([]*domain.MessageRecord, 0, pageSize)
	for msg := range messages {
		records = append(records, convertMessage(msg, folderID, section))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// Fetch returns ascending sequence numbers; reverse for newest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	nextToken := ""
	if lower > 1 {
		nextToken = strconv.FormatUint(uint64(lower-1), 10)
	}

	return &domain.MessagePage{
		Messages:      records,
		NextPageToken: nextToken,
	}, nil
}

// GetMessagesByIDs resolves "<mailbox>/<uid>" ids.
func (s *Source) GetMessagesByIDs(ctx context.Context, ids []string) ([]*domain.MessageRecord, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	// Group UIDs per mailbox so each mailbox is selected once.
	byMailbox := make(map[string][]uint32)
	for _, id := range ids {
		mailbox, uid, err := splitID(id)
		if err != nil {
			return nil, err
		}
		byMailbox[mailbox] = append(byMailbox[mailbox], uid)
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	var records []*domain.MessageRecord
	for mailbox, uids := range byMailbox {
		if _, err := c.Select(mailbox, true); err != nil {
			return nil, fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)

		messages := make(chan *imap.Message, len(uids))
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seqset, items, messages)
		}()

		for msg := range messages {
			records = append(records, convertMessage(msg, mailbox, section))
		}
		if err := <-done; err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}
	}

	return records, nil
}

// ResolveWebLink implements domain.MailSource. IMAP has no deep-links.
func (s *Source) ResolveWebLink(ctx context.Context, id string) (string, error) {
	return "", nil
}

func splitID(id string) (string, uint32, error) {
	idx := strings.LastIndex(id, "/")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("invalid IMAP message id %q", id)
	}
	uid, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid IMAP message id %q", id)
	}
	return id[:idx], uint32(uid), nil
}

func convertMessage(msg *imap.Message, mailbox string, section *imap.BodySectionName) *domain.MessageRecord {
	record := &domain.MessageRecord{
		MessageID: fmt.Sprintf("%s/%d", mailbox, msg.Uid),
		FolderID:  mailbox,
	}

	if msg.Envelope != nil {
		record.Subject = msg.Envelope.Subject
		record.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			record.Sender = msg.Envelope.From[0].Address()
		}
	}

	if body := msg.GetBody(section); body != nil {
		record.Body = extractText(body)
	}

	return record
}

// extractText pulls the first text part out of a raw RFC 822 message.
func extractText(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return ""
			}
			return string(data)
		}
	}
}
