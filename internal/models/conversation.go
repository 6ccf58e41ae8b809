package models

import "time"

// ConversationStatus is the triage lifecycle of a conversation.
type ConversationStatus string

const (
	StatusOpen    ConversationStatus = "open"
	StatusWaiting ConversationStatus = "waiting"
	StatusClosed  ConversationStatus = "closed"
)

// ValidStatus reports whether s is a known conversation status.
func ValidStatus(s string) bool {
	switch ConversationStatus(s) {
	case StatusOpen, StatusWaiting, StatusClosed:
		return true
	}
	return false
}

// Conversation mirrors one Gmail thread, scoped to the inbox it was synced
// from. The upsert key is (inbox_id, gmail_thread_id): Gmail thread ids
// are account-scoped, not globally unique.
type Conversation struct {
	ID                string             `json:"id"`
	InboxID           string             `json:"inbox_id"`
	GmailThreadID     string             `json:"gmail_thread_id"`
	Subject           string             `json:"subject"`
	Status            ConversationStatus `json:"status"`
	AssigneeID        *string            `json:"assignee_id"`
	Preview           string             `json:"preview"`
	LastCustomerMsgAt *time.Time         `json:"last_customer_msg_at"`
	LastAgentMsgAt    *time.Time         `json:"last_agent_msg_at"`
	SnoozedUntil      *time.Time         `json:"snoozed_until"`
	Tags              []Tag              `json:"tags,omitempty"`
	Messages          []*Message         `json:"messages,omitempty"`
}

// Message is one Gmail message belonging to exactly one conversation.
// GmailMessageID is globally unique and is the upsert conflict key.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	GmailMessageID string       `json:"gmail_message_id"`
	FromAddr       string       `json:"from_addr"`
	ToAddrs        []string     `json:"to_addrs"`
	CcAddrs        []string     `json:"cc_addrs"`
	BccAddrs       []string     `json:"bcc_addrs"`
	SentAt         time.Time    `json:"sent_at"`
	BodyHTML       *string      `json:"body_html"`
	BodyText       *string      `json:"body_text"`
	Headers        Headers      `json:"headers"`
	HasAttachments bool         `json:"has_attachments"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Attachment is one file attached to one message. The id is derived from
// the Gmail message id and attachment id, so re-syncing the same message
// converges on the same row.
type Attachment struct {
	ID                string `json:"id"`
	MessageID         string `json:"message_id"`
	GmailAttachmentID string `json:"gmail_attachment_id"`
	Filename          string `json:"filename"`
	MimeType          string `json:"mime_type"`
	SizeBytes         int64  `json:"size_bytes"`
	StoragePath       string `json:"storage_path"`
}

// Comment is an internal-only note on a conversation. Never touched by
// the sync pipeline.
type Comment struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	AuthorID       string    `json:"author_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Tag labels conversations for a team.
type Tag struct {
	ID     string `json:"id"`
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}
