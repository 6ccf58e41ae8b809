package gmail

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"
)

func TestBuildReply(t *testing.T) {
	t.Run("builds a threaded reply", func(t *testing.T) {
		raw, err := BuildReply(ReplyInput{
			From:       "support@example.com",
			To:         []string{"customer@example.com"},
			Cc:         []string{"manager@example.com"},
			Subject:    "Re: Order #1234",
			TextBody:   "On its way.",
			HTMLBody:   "<p>On its way.</p>",
			InReplyTo:  "<orig@mail.example.com>",
			References: "<first@mail.example.com> <orig@mail.example.com>",
		})
		if err != nil {
			t.Fatalf("BuildReply failed: %v", err)
		}

		envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("Failed to parse built message: %v", err)
		}
		if got := envelope.GetHeader("Subject"); got != "Re: Order #1234" {
			t.Errorf("Expected subject preserved, got %q", got)
		}
		if got := envelope.GetHeader("In-Reply-To"); got != "<orig@mail.example.com>" {
			t.Errorf("Expected In-Reply-To header, got %q", got)
		}
		if got := envelope.GetHeader("References"); !strings.Contains(got, "<orig@mail.example.com>") {
			t.Errorf("Expected References header, got %q", got)
		}
		if !strings.Contains(envelope.Text, "On its way.") {
			t.Errorf("Expected text body, got %q", envelope.Text)
		}
		if !strings.Contains(envelope.HTML, "<p>On its way.</p>") {
			t.Errorf("Expected html body, got %q", envelope.HTML)
		}
	})

	t.Run("rejects empty recipient list", func(t *testing.T) {
		if _, err := BuildReply(ReplyInput{From: "support@example.com", Subject: "hi"}); err == nil {
			t.Error("Expected error for reply without recipients")
		}
	})
}

func TestReplySubject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Order #1234", "Re: Order #1234"},
		{"Re: Order #1234", "Re: Order #1234"},
		{"RE: shouting", "RE: shouting"},
		{"", "Re: (no subject)"},
	}
	for _, c := range cases {
		if got := ReplySubject(c.in); got != c.want {
			t.Errorf("ReplySubject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
