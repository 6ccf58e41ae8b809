package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/models"
	"github.com/sharedmail/backend/internal/testutil"
)

func seedConversation(t *testing.T, pool *pgxpool.Pool, inboxID, threadID string) *models.Conversation {
	t.Helper()

	now := time.Now()
	conv := &models.Conversation{
		InboxID:           inboxID,
		GmailThreadID:     threadID,
		Subject:           "Order #1234",
		Preview:           "Where is my order?",
		LastCustomerMsgAt: &now,
	}
	require.NoError(t, db.UpsertConversation(context.Background(), pool, conv))
	return conv
}

func TestConversationsHandler(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	teamID := testutil.CreateTestTeam(t, pool, "Acme")
	inboxID := testutil.CreateTestInbox(t, pool, teamID, "support@example.com")
	agentID := testutil.CreateTestProfile(t, pool, teamID, "agent@example.com", "agent")
	agent := &models.Profile{ID: agentID, Email: "agent@example.com", Role: models.RoleAgent, TeamID: teamID}

	otherTeamID := testutil.CreateTestTeam(t, pool, "Rival")
	outsiderID := testutil.CreateTestProfile(t, pool, otherTeamID, "outsider@example.com", "agent")
	outsider := &models.Profile{ID: outsiderID, Email: "outsider@example.com", Role: models.RoleAgent, TeamID: otherTeamID}

	conv := seedConversation(t, pool, inboxID, "t1")
	h := NewConversationsHandler(pool)

	t.Run("list scoped to team", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.List(rec, requestWithProfile(http.MethodGet, "/api/v1/conversations", "", agent))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Conversations []*models.Conversation `json:"conversations"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Conversations, 1)
		assert.Equal(t, conv.ID, resp.Conversations[0].ID)

		rec = httptest.NewRecorder()
		h.List(rec, requestWithProfile(http.MethodGet, "/api/v1/conversations", "", outsider))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Conversations)
	})

	t.Run("cross-team get looks like a 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Get(rec, requestWithProfile(http.MethodGet, "/", "", outsider), conv.ID)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("status transitions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.SetStatus(rec, requestWithProfile(http.MethodPost, "/", `{"status":"closed"}`, agent), conv.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		after, err := db.GetConversationByID(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, after.Status)

		rec = httptest.NewRecorder()
		h.SetStatus(rec, requestWithProfile(http.MethodPost, "/", `{"status":"bogus"}`, agent), conv.ID)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("assign and unassign", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Assign(rec, requestWithProfile(http.MethodPost, "/", `{"assignee_id":"`+agentID+`"}`, agent), conv.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		after, err := db.GetConversationByID(ctx, pool, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, after.AssigneeID)
		assert.Equal(t, agentID, *after.AssigneeID)

		rec = httptest.NewRecorder()
		h.Assign(rec, requestWithProfile(http.MethodPost, "/", `{"assignee_id":null}`, agent), conv.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		after, err = db.GetConversationByID(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.Nil(t, after.AssigneeID)
	})

	t.Run("snooze rejects past times", func(t *testing.T) {
		past := time.Now().Add(-time.Hour).Format(time.RFC3339)
		rec := httptest.NewRecorder()
		h.Snooze(rec, requestWithProfile(http.MethodPost, "/", `{"snoozed_until":"`+past+`"}`, agent), conv.ID)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("tag and untag", func(t *testing.T) {
		tag := &models.Tag{TeamID: teamID, Name: "billing", Color: "#ff0000"}
		require.NoError(t, db.CreateTag(ctx, pool, tag))

		rec := httptest.NewRecorder()
		h.Tag(rec, requestWithProfile(http.MethodPost, "/", `{"tag_id":"`+tag.ID+`"}`, agent), conv.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		tags, err := db.GetTagsForConversation(ctx, pool, conv.ID)
		require.NoError(t, err)
		require.Len(t, tags, 1)

		rec = httptest.NewRecorder()
		h.Untag(rec, requestWithProfile(http.MethodPost, "/", `{"tag_id":"`+tag.ID+`"}`, agent), conv.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		tags, err = db.GetTagsForConversation(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.Empty(t, tags)
	})

	t.Run("comments", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.CreateComment(rec, requestWithProfile(http.MethodPost, "/", `{"body":"internal note"}`, agent), conv.ID)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = httptest.NewRecorder()
		h.ListComments(rec, requestWithProfile(http.MethodGet, "/", "", agent), conv.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Comments []*models.Comment `json:"comments"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Comments, 1)
		assert.Equal(t, "internal note", resp.Comments[0].Body)
		assert.Equal(t, agentID, resp.Comments[0].AuthorID)
	})

	t.Run("viewer cannot mutate", func(t *testing.T) {
		viewerID := testutil.CreateTestProfile(t, pool, teamID, "viewer@example.com", "viewer")
		viewer := &models.Profile{ID: viewerID, Email: "viewer@example.com", Role: models.RoleViewer, TeamID: teamID}

		rec := httptest.NewRecorder()
		h.SetStatus(rec, requestWithProfile(http.MethodPost, "/", `{"status":"open"}`, viewer), conv.ID)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = httptest.NewRecorder()
		h.Get(rec, requestWithProfile(http.MethodGet, "/", "", viewer), conv.ID)
		assert.Equal(t, http.StatusOK, rec.Code, "viewers can still read")
	})
}

func TestReplyEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	teamID := testutil.CreateTestTeam(t, pool, "Acme")
	inboxID := testutil.CreateTestInbox(t, pool, teamID, "support@example.com")
	agentID := testutil.CreateTestProfile(t, pool, teamID, "agent@example.com", "agent")
	agent := &models.Profile{ID: agentID, Email: "agent@example.com", Role: models.RoleAgent, TeamID: teamID}

	vault := newTestVault(t, pool)
	storeTestCredentials(t, vault, inboxID)

	conv := seedConversation(t, pool, inboxID, "t1")

	inbound := &models.Message{
		ConversationID: conv.ID,
		GmailMessageID: "m1",
		FromAddr:       "customer@example.com",
		SentAt:         time.Now().Add(-time.Hour),
		Headers:        models.Headers{},
	}
	inbound.Headers.Add("message-id", "<orig@mail.example.com>")
	inbound.Headers.Add("references", "<first@mail.example.com>")
	require.NoError(t, db.SaveMessage(ctx, pool, inbound))

	sender := &fakeSender{sentID: "sent-1", sentThreadID: "t1"}
	h := NewReplyHandler(pool, vault, sender)

	body := `{"to":["customer@example.com"],"text_body":"On its way."}`
	rec := httptest.NewRecorder()
	h.Send(rec, requestWithProfile(http.MethodPost, "/", body, agent), conv.ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("reply is threaded", func(t *testing.T) {
		raw := string(sender.lastRaw)
		assert.Contains(t, raw, "In-Reply-To: <orig@mail.example.com>")
		assert.Contains(t, raw, "<first@mail.example.com> <orig@mail.example.com>")
		assert.Equal(t, "t1", sender.lastThreadID)
	})

	t.Run("outbound message stored", func(t *testing.T) {
		msg, err := db.GetMessageByGmailID(ctx, pool, "sent-1")
		require.NoError(t, err)
		assert.Equal(t, "support@example.com", msg.FromAddr)
		assert.Equal(t, []string{"customer@example.com"}, msg.ToAddrs)
	})

	t.Run("conversation moves to waiting", func(t *testing.T) {
		after, err := db.GetConversationByID(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusWaiting, after.Status)
		require.NotNil(t, after.AssigneeID)
		assert.Equal(t, agentID, *after.AssigneeID)
		assert.NotNil(t, after.LastAgentMsgAt)
	})
}
