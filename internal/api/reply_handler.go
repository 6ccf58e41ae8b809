package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/gmail"
	"github.com/sharedmail/backend/internal/models"
	"github.com/sharedmail/backend/internal/tokens"
)

// ReplySender sends a built reply through the provider. Satisfied by the
// Gmail client; faked in tests.
type ReplySender interface {
	SendMessage(ctx context.Context, token *tokens.StoredToken, raw []byte, threadID string) (sentID, sentThreadID string, err error)
}

// ReplyHandler sends agent replies out through the connected inbox.
type ReplyHandler struct {
	pool   *pgxpool.Pool
	vault  *tokens.Vault
	sender ReplySender
}

// NewReplyHandler creates a new ReplyHandler instance.
func NewReplyHandler(pool *pgxpool.Pool, vault *tokens.Vault, sender ReplySender) *ReplyHandler {
	return &ReplyHandler{pool: pool, vault: vault, sender: sender}
}

type replyRequest struct {
	To       []string `json:"to"`
	Cc       []string `json:"cc"`
	TextBody string   `json:"text_body"`
	HTMLBody string   `json:"html_body"`
}

// validate rejects a malformed reply before anything is loaded or sent.
func (req *replyRequest) validate() string {
	if len(req.To) == 0 {
		return "to must contain at least one recipient"
	}
	for _, addr := range append(append([]string{}, req.To...), req.Cc...) {
		if !strings.Contains(addr, "@") {
			return "recipient " + addr + " is not a valid address"
		}
	}
	if strings.TrimSpace(req.TextBody) == "" && strings.TrimSpace(req.HTMLBody) == "" {
		return "reply body is empty"
	}
	return ""
}

// Send builds and sends a reply on the conversation's Gmail thread, stores
// the outbound message, and moves the conversation to waiting with the
// replying agent as assignee.
func (h *ReplyHandler) Send(w http.ResponseWriter, r *http.Request, conversationID string) {
	ctx := r.Context()

	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}
	if profile.Role == models.RoleViewer {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req replyRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	conv, err := db.GetConversationByID(ctx, h.pool, conversationID)
	if err != nil {
		if errors.Is(err, db.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
		} else {
			log.Printf("ReplyHandler: Failed to load conversation: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	inbox, err := db.GetInboxByID(ctx, h.pool, conv.InboxID)
	if err != nil || inbox.TeamID != profile.TeamID {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	token, err := h.vault.Decrypt(inbox)
	if err != nil {
		log.Printf("ReplyHandler: Failed to decrypt credentials for inbox %s: %v", inbox.ID, err)
		http.Error(w, "Inbox credentials are unreadable", http.StatusConflict)
		return
	}
	if token == nil {
		http.Error(w, "Inbox is not connected", http.StatusConflict)
		return
	}
	if h.vault.NeedsRefresh(token) {
		token, err = h.vault.Refresh(ctx, inbox, token)
		if err != nil {
			log.Printf("ReplyHandler: %v", err)
			http.Error(w, "Failed to refresh inbox credentials", http.StatusBadGateway)
			return
		}
	}

	input := gmail.ReplyInput{
		From:     inbox.GmailAddress,
		To:       req.To,
		Cc:       req.Cc,
		Subject:  gmail.ReplySubject(conv.Subject),
		TextBody: req.TextBody,
		HTMLBody: req.HTMLBody,
	}

	// Thread the reply off the newest stored message. A conversation with
	// no stored messages yet still sends, just without reference headers.
	latest, err := db.GetLatestMessageForConversation(ctx, h.pool, conv.ID)
	if err != nil && !errors.Is(err, db.ErrMessageNotFound) {
		log.Printf("ReplyHandler: Failed to load latest message: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if latest != nil {
		messageID := latest.Headers.First("message-id")
		input.InReplyTo = messageID
		references := latest.Headers.Flatten("references", " ")
		if messageID != "" {
			references = strings.TrimSpace(references + " " + messageID)
		}
		input.References = references
	}

	raw, err := gmail.BuildReply(input)
	if err != nil {
		log.Printf("ReplyHandler: Failed to build reply: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sentID, sentThreadID, err := h.sender.SendMessage(ctx, token, raw, conv.GmailThreadID)
	if err != nil {
		log.Printf("ReplyHandler: Failed to send reply on conversation %s: %v", conv.ID, err)
		http.Error(w, "Failed to send reply", http.StatusBadGateway)
		return
	}

	now := time.Now()
	gmailMessageID := sentID
	if gmailMessageID == "" {
		// The send went through but the response carried no id; a
		// generated one keeps the row unique without colliding with a
		// later sync of the real message.
		gmailMessageID = "local-" + uuid.NewString()
	}

	outbound := &models.Message{
		ConversationID: conv.ID,
		GmailMessageID: gmailMessageID,
		FromAddr:       inbox.GmailAddress,
		ToAddrs:        req.To,
		CcAddrs:        req.Cc,
		SentAt:         now,
		Headers:        models.Headers{},
	}
	if req.HTMLBody != "" {
		outbound.BodyHTML = &req.HTMLBody
	}
	if req.TextBody != "" {
		outbound.BodyText = &req.TextBody
	}
	if err := db.SaveMessage(ctx, h.pool, outbound); err != nil {
		log.Printf("ReplyHandler: Reply sent but failed to store message: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := db.MarkConversationReplied(ctx, h.pool, conv.ID, profile.ID, now, sentThreadID); err != nil {
		log.Printf("ReplyHandler: Failed to update conversation after reply: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	WriteJSONResponse(w, outbound)
}
