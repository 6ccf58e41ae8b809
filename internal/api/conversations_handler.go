package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/models"
)

// ConversationsHandler handles conversation triage: listing, detail,
// status, assignment, snoozing, tags and comments.
type ConversationsHandler struct {
	pool *pgxpool.Pool
}

// NewConversationsHandler creates a new ConversationsHandler instance.
func NewConversationsHandler(pool *pgxpool.Pool) *ConversationsHandler {
	return &ConversationsHandler{pool: pool}
}

// loadTeamConversation fetches a conversation and verifies it belongs to
// the caller's team, writing a 404 otherwise. Cross-team ids look exactly
// like missing ones from the outside.
func (h *ConversationsHandler) loadTeamConversation(w http.ResponseWriter, r *http.Request, profile *models.Profile, conversationID string) (*models.Conversation, bool) {
	conv, err := db.GetConversationByID(r.Context(), h.pool, conversationID)
	if err != nil {
		if errors.Is(err, db.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
		} else {
			log.Printf("ConversationsHandler: Failed to load conversation %s: %v", conversationID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return nil, false
	}

	inbox, err := db.GetInboxByID(r.Context(), h.pool, conv.InboxID)
	if err != nil || inbox.TeamID != profile.TeamID {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return nil, false
	}

	return conv, true
}

func requireAgent(w http.ResponseWriter, profile *models.Profile) bool {
	if profile.Role == models.RoleViewer {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// List returns the team's conversations, filtered by the optional status,
// assignee_id, inbox_id and snoozed query parameters.
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if status := query.Get("status"); status != "" && !models.ValidStatus(status) {
		http.Error(w, "Invalid status filter", http.StatusUnprocessableEntity)
		return
	}

	limit, offset := ParsePaginationParams(r, 50)
	filter := db.ConversationFilter{
		TeamID:     profile.TeamID,
		InboxID:    query.Get("inbox_id"),
		Status:     query.Get("status"),
		AssigneeID: query.Get("assignee_id"),
		Limit:      limit,
		Offset:     offset,
	}
	if snoozed := query.Get("snoozed"); snoozed != "" {
		value := snoozed == "true"
		filter.Snoozed = &value
	}

	conversations, err := db.ListConversations(r.Context(), h.pool, filter)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to list conversations: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{"conversations": conversations})
}

// Get returns one conversation with its tags, messages and attachments.
func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request, conversationID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	tags, err := db.GetTagsForConversation(r.Context(), h.pool, conv.ID)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to load tags: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	conv.Tags = tags

	messages, err := db.GetMessagesForConversation(r.Context(), h.pool, conv.ID)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to load messages: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	messageIDs := make([]string, 0, len(messages))
	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)
	}
	attachmentsByMessage, err := db.GetAttachmentsForMessages(r.Context(), h.pool, messageIDs)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to load attachments: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	for _, msg := range messages {
		for _, att := range attachmentsByMessage[msg.ID] {
			msg.Attachments = append(msg.Attachments, *att)
		}
	}
	conv.Messages = messages

	WriteJSONResponse(w, conv)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus updates the triage status.
func (h *ConversationsHandler) SetStatus(w http.ResponseWriter, r *http.Request, conversationID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok || !requireAgent(w, profile) {
		return
	}

	var req setStatusRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}
	if !models.ValidStatus(req.Status) {
		http.Error(w, "Invalid status", http.StatusUnprocessableEntity)
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	if err := db.SetConversationStatus(r.Context(), h.pool, conv.ID, models.ConversationStatus(req.Status)); err != nil {
		log.Printf("ConversationsHandler: Failed to set status: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]string{"status": req.Status})
}

type assignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// Assign sets or clears (null) the conversation's assignee.
func (h *ConversationsHandler) Assign(w http.ResponseWriter, r *http.Request, conversationID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok || !requireAgent(w, profile) {
		return
	}

	var req assignRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	if err := db.SetConversationAssignee(r.Context(), h.pool, conv.ID, req.AssigneeID); err != nil {
		log.Printf("ConversationsHandler: Failed to assign: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{"assignee_id": req.AssigneeID})
}

type snoozeRequest struct {
	SnoozedUntil *time.Time `json:"snoozed_until"`
}

// Snooze hides a conversation until the given time; null unsnoozes.
func (h *ConversationsHandler) Snooze(w http.ResponseWriter, r *http.Request, conversationID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok || !requireAgent(w, profile) {
		return
	}

	var req snoozeRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}
	if req.SnoozedUntil != nil && req.SnoozedUntil.Before(time.Now()) {
		http.Error(w, "snoozed_until must be in the future", http.StatusUnprocessableEntity)
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	if err := db.SetConversationSnoozedUntil(r.Context(), h.pool, conv.ID, req.SnoozedUntil); err != nil {
		log.Printf("ConversationsHandler: Failed to snooze: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{"snoozed_until": req.SnoozedUntil})
}

type tagRequest struct {
	TagID string `json:"tag_id"`
}

// Tag attaches a tag to the conversation; adding the same tag twice is a
// no-op.
func (h *ConversationsHandler) Tag(w http.ResponseWriter, r *http.Request, conversationID string) {
	h.changeTag(w, r, conversationID, db.AddConversationTag)
}

// Untag removes a tag from the conversation.
func (h *ConversationsHandler) Untag(w http.ResponseWriter, r *http.Request, conversationID string) {
	h.changeTag(w, r, conversationID, db.RemoveConversationTag)
}

func (h *ConversationsHandler) changeTag(w http.ResponseWriter, r *http.Request, conversationID string, apply func(ctx context.Context, pool *pgxpool.Pool, conversationID, tagID string) error) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok || !requireAgent(w, profile) {
		return
	}

	var req tagRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TagID) == "" {
		http.Error(w, "tag_id is required", http.StatusUnprocessableEntity)
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	if err := apply(r.Context(), h.pool, conv.ID, req.TagID); err != nil {
		log.Printf("ConversationsHandler: Failed to change tags: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	tags, err := db.GetTagsForConversation(r.Context(), h.pool, conv.ID)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to reload tags: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{"tags": tags})
}

// ListComments returns the internal notes on a conversation, oldest first.
func (h *ConversationsHandler) ListComments(w http.ResponseWriter, r *http.Request, conversationID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	comments, err := db.GetCommentsForConversation(r.Context(), h.pool, conv.ID)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to list comments: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{"comments": comments})
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// CreateComment adds an internal note. Comments never leave the system;
// they are invisible to the customer side.
func (h *ConversationsHandler) CreateComment(w http.ResponseWriter, r *http.Request, conversationID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok || !requireAgent(w, profile) {
		return
	}

	var req createCommentRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		http.Error(w, "body is required", http.StatusUnprocessableEntity)
		return
	}

	conv, ok := h.loadTeamConversation(w, r, profile, conversationID)
	if !ok {
		return
	}

	comment := &models.Comment{
		ConversationID: conv.ID,
		AuthorID:       profile.ID,
		Body:           req.Body,
	}
	if err := db.CreateComment(r.Context(), h.pool, comment); err != nil {
		log.Printf("ConversationsHandler: Failed to create comment: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	WriteJSONResponse(w, comment)
}
