package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/models"
	"github.com/sharedmail/backend/internal/testutil"
)

func saveTestMessage(t *testing.T, pool *pgxpool.Pool, conversationID, gmailID string, html, text *string) *models.Message {
	t.Helper()

	headers := models.Headers{}
	headers.Add("message-id", "<"+gmailID+"@mail.example.com>")
	headers.Add("references", "<a@x>")
	headers.Add("references", "<b@x>")

	msg := &models.Message{
		ConversationID: conversationID,
		GmailMessageID: gmailID,
		FromAddr:       "customer@example.com",
		ToAddrs:        []string{"support@example.com"},
		SentAt:         time.Now().Truncate(time.Millisecond),
		BodyHTML:       html,
		BodyText:       text,
		Headers:        headers,
	}
	if err := SaveMessage(context.Background(), pool, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	return msg
}

func strPtr(s string) *string { return &s }

func TestSaveMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	teamID := testutil.CreateTestTeam(t, pool, "Acme")
	inboxID := testutil.CreateTestInbox(t, pool, teamID, "support@example.com")
	conv := upsertTestConversation(t, pool, inboxID, "t1", "Subject")

	first := saveTestMessage(t, pool, conv.ID, "m1", strPtr("<p>hi</p>"), strPtr("hi"))

	t.Run("headers round trip with multi-value keys", func(t *testing.T) {
		stored, err := GetMessageByGmailID(ctx, pool, "m1")
		if err != nil {
			t.Fatalf("GetMessageByGmailID failed: %v", err)
		}
		if got := stored.Headers.First("message-id"); got != "<m1@mail.example.com>" {
			t.Errorf("Unexpected message-id: %q", got)
		}
		refs := stored.Headers["references"]
		if len(refs) != 2 || refs[0] != "<a@x>" || refs[1] != "<b@x>" {
			t.Errorf("Expected ordered references list, got %v", refs)
		}
	})

	t.Run("re-save converges on the same row", func(t *testing.T) {
		again := saveTestMessage(t, pool, conv.ID, "m1", strPtr("<p>hi</p>"), strPtr("hi"))
		if again.ID != first.ID {
			t.Errorf("Expected the same row, got %s and %s", first.ID, again.ID)
		}
	})

	t.Run("nil bodies never blank stored ones", func(t *testing.T) {
		saveTestMessage(t, pool, conv.ID, "m1", nil, nil)

		stored, err := GetMessageByGmailID(ctx, pool, "m1")
		if err != nil {
			t.Fatalf("GetMessageByGmailID failed: %v", err)
		}
		if stored.BodyHTML == nil || *stored.BodyHTML != "<p>hi</p>" {
			t.Errorf("Expected html body preserved, got %v", stored.BodyHTML)
		}
		if stored.BodyText == nil || *stored.BodyText != "hi" {
			t.Errorf("Expected text body preserved, got %v", stored.BodyText)
		}
	})
}

func TestAttachmentRows(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	teamID := testutil.CreateTestTeam(t, pool, "Acme")
	inboxID := testutil.CreateTestInbox(t, pool, teamID, "support@example.com")
	conv := upsertTestConversation(t, pool, inboxID, "t1", "Subject")
	msg := saveTestMessage(t, pool, conv.ID, "m1", strPtr("<p>hi</p>"), nil)

	if got := AttachmentID("m1", "att-1"); got != "m1-att-1" {
		t.Fatalf("Unexpected derived id: %q", got)
	}

	att := &models.Attachment{
		ID:                AttachmentID("m1", "att-1"),
		MessageID:         msg.ID,
		GmailAttachmentID: "att-1",
		Filename:          "invoice.pdf",
		MimeType:          "application/pdf",
		SizeBytes:         1024,
		StoragePath:       inboxID + "/m1/att-1",
	}
	if err := UpsertAttachment(ctx, pool, att); err != nil {
		t.Fatalf("UpsertAttachment failed: %v", err)
	}

	t.Run("re-upsert updates in place", func(t *testing.T) {
		att.SizeBytes = 2048
		if err := UpsertAttachment(ctx, pool, att); err != nil {
			t.Fatalf("UpsertAttachment failed: %v", err)
		}

		rows, err := GetAttachmentsForMessage(ctx, pool, msg.ID)
		if err != nil {
			t.Fatalf("GetAttachmentsForMessage failed: %v", err)
		}
		if len(rows) != 1 || rows[0].SizeBytes != 2048 {
			t.Errorf("Expected one updated row, got %+v", rows)
		}
	})

	t.Run("batch lookup groups by message", func(t *testing.T) {
		byMessage, err := GetAttachmentsForMessages(ctx, pool, []string{msg.ID})
		if err != nil {
			t.Fatalf("GetAttachmentsForMessages failed: %v", err)
		}
		if len(byMessage[msg.ID]) != 1 {
			t.Errorf("Expected one attachment for message, got %v", byMessage)
		}
	})
}
