package gmail

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/k3a/html2text"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/models"
	"github.com/sharedmail/backend/internal/storage"
	"github.com/sharedmail/backend/internal/tokens"
)

const (
	// maxMessagesPerRun caps a single inbox's batch per cycle. Backlog
	// beyond the cap is picked up by later cycles.
	maxMessagesPerRun = 200

	// defaultLookback is how far back the first sync of an inbox reaches.
	defaultLookback = 72 * time.Hour

	// previewLength truncates the conversation preview, in characters.
	previewLength = 200
)

// Provider is the subset of the Gmail client the sync service needs.
type Provider interface {
	ListMessageIDs(ctx context.Context, token *tokens.StoredToken, after time.Time, limit int64) ([]string, error)
	GetMessage(ctx context.Context, token *tokens.StoredToken, id string) (*gmailv1.Message, error)
	GetAttachment(ctx context.Context, token *tokens.StoredToken, messageID, attachmentID string) ([]byte, error)
}

// Service reconciles provider state into the database. All writes go
// through upserts keyed on provider ids, so re-running a cycle over the
// same messages converges instead of duplicating.
type Service struct {
	pool     *pgxpool.Pool
	vault    *tokens.Vault
	provider Provider
	blobs    storage.BlobStore
}

// NewService creates a sync Service.
func NewService(pool *pgxpool.Pool, vault *tokens.Vault, provider Provider, blobs storage.BlobStore) *Service {
	return &Service{pool: pool, vault: vault, provider: provider, blobs: blobs}
}

// SyncAll runs one sync cycle over every active inbox. A failing inbox is
// logged and skipped; it never blocks the others.
func (s *Service) SyncAll(ctx context.Context) error {
	inboxes, err := db.GetActiveInboxes(ctx, s.pool)
	if err != nil {
		return fmt.Errorf("failed to load active inboxes: %w", err)
	}

	for _, inbox := range inboxes {
		if err := s.SyncInbox(ctx, inbox); err != nil {
			log.Printf("Warning: Sync failed for inbox %s: %v", inbox.ID, err)
		}
	}

	return nil
}

// SyncInbox runs one sync cycle for a single inbox: refresh credentials if
// needed, list message ids past the watermark, mirror each message, then
// advance the watermark. A provider error mid-batch abandons the rest of
// the batch and leaves the watermark where it was, so the next cycle
// re-covers the same window.
func (s *Service) SyncInbox(ctx context.Context, inbox *models.Inbox) error {
	token, err := s.vault.Decrypt(inbox)
	if err != nil {
		return err
	}
	if token == nil {
		// Not connected; nothing to do.
		return nil
	}

	if s.vault.NeedsRefresh(token) {
		token, err = s.vault.Refresh(ctx, inbox, token)
		if err != nil {
			return err
		}
	}

	// The watermark advances to the cycle start, not the cycle end, so
	// messages arriving during the cycle are not skipped.
	syncStartedAt := time.Now()
	watermark := syncStartedAt.Add(-defaultLookback)
	if inbox.LastSyncedAt != nil {
		watermark = *inbox.LastSyncedAt
	}

	ids, err := s.provider.ListMessageIDs(ctx, token, watermark, maxMessagesPerRun)
	if err != nil {
		return fmt.Errorf("failed to list messages for inbox %s: %w", inbox.ID, err)
	}

	for _, id := range ids {
		msg, err := s.provider.GetMessage(ctx, token, id)
		if err != nil {
			return fmt.Errorf("failed to fetch message %s for inbox %s: %w", id, inbox.ID, err)
		}
		if err := s.storeMessage(ctx, inbox, token, msg); err != nil {
			return fmt.Errorf("failed to store message %s for inbox %s: %w", id, inbox.ID, err)
		}
	}

	if err := db.SetInboxLastSyncedAt(ctx, s.pool, inbox.ID, syncStartedAt); err != nil {
		return err
	}

	if len(ids) > 0 {
		log.Printf("Synced %d messages for inbox %s", len(ids), inbox.ID)
	}

	return nil
}

func (s *Service) storeMessage(ctx context.Context, inbox *models.Inbox, token *tokens.StoredToken, msg *gmailv1.Message) error {
	// Drafts and some system messages come back without a thread id or
	// payload; there is nothing to mirror for them.
	if msg.ThreadId == "" || msg.Payload == nil {
		log.Printf("Warning: Skipping message %s for inbox %s: no thread id or payload", msg.Id, inbox.ID)
		return nil
	}

	parsed := ParsePayload(msg.Payload)

	subject := parsed.Headers.Flatten("subject", " ")
	if subject == "" {
		subject = "(no subject)"
	}

	sentAt := messageSentAt(parsed, msg)

	conv := &models.Conversation{
		InboxID:           inbox.ID,
		GmailThreadID:     msg.ThreadId,
		Subject:           subject,
		Preview:           previewText(msg.Snippet, parsed),
		LastCustomerMsgAt: &sentAt,
	}
	if err := db.UpsertConversation(ctx, s.pool, conv); err != nil {
		return err
	}

	message := &models.Message{
		ConversationID: conv.ID,
		GmailMessageID: msg.Id,
		FromAddr:       parsed.Headers.Flatten("from", " "),
		ToAddrs:        splitAddresses(parsed.Headers.Flatten("to", ", ")),
		CcAddrs:        splitAddresses(parsed.Headers.Flatten("cc", ", ")),
		BccAddrs:       splitAddresses(parsed.Headers.Flatten("bcc", ", ")),
		SentAt:         sentAt,
		BodyHTML:       nullableString(parsed.BodyHTML),
		BodyText:       nullableString(parsed.BodyText),
		Headers:        parsed.Headers,
		HasAttachments: len(parsed.Attachments) > 0,
	}
	if err := db.SaveMessage(ctx, s.pool, message); err != nil {
		return err
	}

	for _, descriptor := range parsed.Attachments {
		s.storeAttachment(ctx, inbox, token, msg.Id, message.ID, descriptor)
	}

	return nil
}

// storeAttachment mirrors one attachment's bytes and row. Failures are
// logged and skipped; a broken attachment never fails its message, and a
// later cycle re-processing the message retries it.
func (s *Service) storeAttachment(ctx context.Context, inbox *models.Inbox, token *tokens.StoredToken, gmailMessageID, messageID string, descriptor AttachmentDescriptor) {
	data, err := s.provider.GetAttachment(ctx, token, gmailMessageID, descriptor.AttachmentID)
	if err != nil {
		log.Printf("Warning: Failed to fetch attachment %s for message %s: %v", descriptor.AttachmentID, gmailMessageID, err)
		return
	}

	storagePath := fmt.Sprintf("%s/%s/%s", inbox.ID, gmailMessageID, descriptor.AttachmentID)
	if err := s.blobs.Put(ctx, storagePath, descriptor.MimeType, data); err != nil {
		log.Printf("Warning: Failed to store attachment %s for message %s: %v", descriptor.AttachmentID, gmailMessageID, err)
		return
	}

	size := descriptor.Size
	if size == 0 {
		size = int64(len(data))
	}

	attachment := &models.Attachment{
		ID:                db.AttachmentID(gmailMessageID, descriptor.AttachmentID),
		MessageID:         messageID,
		GmailAttachmentID: descriptor.AttachmentID,
		Filename:          descriptor.Filename,
		MimeType:          descriptor.MimeType,
		SizeBytes:         size,
		StoragePath:       storagePath,
	}
	if err := db.UpsertAttachment(ctx, s.pool, attachment); err != nil {
		log.Printf("Warning: Failed to save attachment %s for message %s: %v", descriptor.AttachmentID, gmailMessageID, err)
	}
}

// messageSentAt prefers the Date header, then the provider's internal
// timestamp, then the current time.
func messageSentAt(parsed *ParsedMessage, msg *gmailv1.Message) time.Time {
	if date := parsed.Headers.First("date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			return t
		}
	}
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate)
	}
	return time.Now()
}

// previewText derives the conversation preview: the provider snippet when
// present, otherwise text extracted from the message body.
func previewText(snippet string, parsed *ParsedMessage) string {
	preview := strings.TrimSpace(snippet)
	if preview == "" && parsed.BodyHTML != "" {
		preview = strings.TrimSpace(html2text.HTML2Text(parsed.BodyHTML))
	}
	if preview == "" {
		preview = strings.TrimSpace(parsed.BodyText)
	}

	runes := []rune(preview)
	if len(runes) > previewLength {
		preview = string(runes[:previewLength])
	}
	return preview
}

// splitAddresses splits a comma-separated address header into trimmed
// entries, dropping empties.
func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	return addrs
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
