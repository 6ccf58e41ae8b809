package gmail

import (
	"encoding/base64"
	"reflect"
	"testing"

	gmailv1 "google.golang.org/api/gmail/v1"
)

func bodyData(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func textPart(mimeType, content string) *gmailv1.MessagePart {
	return &gmailv1.MessagePart{
		MimeType: mimeType,
		Body:     &gmailv1.MessagePartBody{Data: bodyData(content)},
	}
}

func TestParsePayloadHeaders(t *testing.T) {
	payload := &gmailv1.MessagePart{
		Headers: []*gmailv1.MessagePartHeader{
			{Name: "Subject", Value: "Order #1234"},
			{Name: "From", Value: "customer@example.com"},
			{Name: "Cc", Value: "one@example.com"},
			{Name: "cc", Value: "two@example.com"},
			{Name: "X-Custom", Value: "keep-my-case"},
			{Name: "References", Value: "<a@x>"},
			{Name: "References", Value: "<b@x>"},
		},
	}

	parsed := ParsePayload(payload)

	t.Run("recognized headers are lower-cased", func(t *testing.T) {
		if got := parsed.Headers.First("subject"); got != "Order #1234" {
			t.Errorf("Expected subject under lower-case key, got %q", got)
		}
		if _, exists := parsed.Headers["Subject"]; exists {
			t.Error("Expected no mixed-case key for a recognized header")
		}
	})

	t.Run("case variants of a recognized header merge", func(t *testing.T) {
		want := []string{"one@example.com", "two@example.com"}
		if got := []string(parsed.Headers["cc"]); !reflect.DeepEqual(got, want) {
			t.Errorf("Expected cc values %v, got %v", want, got)
		}
	})

	t.Run("unrecognized headers keep their case", func(t *testing.T) {
		if got := parsed.Headers.First("X-Custom"); got != "keep-my-case" {
			t.Errorf("Expected X-Custom preserved verbatim, got %q", got)
		}
	})

	t.Run("repeats accumulate in order", func(t *testing.T) {
		want := []string{"<a@x>", "<b@x>"}
		if got := []string(parsed.Headers["references"]); !reflect.DeepEqual(got, want) {
			t.Errorf("Expected references %v, got %v", want, got)
		}
	})
}

func TestParsePayloadBodies(t *testing.T) {
	t.Run("first html part wins", func(t *testing.T) {
		payload := &gmailv1.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmailv1.MessagePart{
				textPart("text/plain", "plain body"),
				textPart("text/html", "<p>first</p>"),
				textPart("text/html", "<p>second</p>"),
			},
		}

		parsed := ParsePayload(payload)
		if parsed.BodyHTML != "<p>first</p>" {
			t.Errorf("Expected first html part, got %q", parsed.BodyHTML)
		}
		if parsed.BodyText != "plain body" {
			t.Errorf("Expected plain body, got %q", parsed.BodyText)
		}
	})

	t.Run("single-part plain message", func(t *testing.T) {
		parsed := ParsePayload(textPart("text/plain", "just text"))
		if parsed.BodyText != "just text" {
			t.Errorf("Expected body text, got %q", parsed.BodyText)
		}
	})

	t.Run("nested multipart", func(t *testing.T) {
		payload := &gmailv1.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmailv1.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmailv1.MessagePart{
						textPart("text/plain", "nested text"),
						textPart("text/html", "<p>nested html</p>"),
					},
				},
			},
		}

		parsed := ParsePayload(payload)
		if parsed.BodyHTML != "<p>nested html</p>" || parsed.BodyText != "nested text" {
			t.Errorf("Expected both nested bodies, got html=%q text=%q", parsed.BodyHTML, parsed.BodyText)
		}
	})

	t.Run("text-only message gets escaped pre fallback", func(t *testing.T) {
		parsed := ParsePayload(textPart("text/plain", `Hello & <b>"you"</b> it's me`))
		want := "<pre>Hello &amp; &lt;b&gt;&quot;you&quot;&lt;/b&gt; it&#39;s me</pre>"
		if parsed.BodyHTML != want {
			t.Errorf("Expected fallback html %q, got %q", want, parsed.BodyHTML)
		}
	})

	t.Run("empty payload produces no bodies", func(t *testing.T) {
		parsed := ParsePayload(&gmailv1.MessagePart{})
		if parsed.BodyHTML != "" || parsed.BodyText != "" {
			t.Errorf("Expected empty bodies, got html=%q text=%q", parsed.BodyHTML, parsed.BodyText)
		}
	})

	t.Run("nil payload is safe", func(t *testing.T) {
		parsed := ParsePayload(nil)
		if parsed == nil || len(parsed.Headers) != 0 || len(parsed.Attachments) != 0 {
			t.Errorf("Expected empty result for nil payload, got %+v", parsed)
		}
	})
}

func TestParsePayloadAttachments(t *testing.T) {
	t.Run("descriptor fields and defaults", func(t *testing.T) {
		payload := &gmailv1.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmailv1.MessagePart{
				{
					MimeType: "application/pdf",
					Filename: "invoice.pdf",
					Body:     &gmailv1.MessagePartBody{AttachmentId: "att-1", Size: 1024},
				},
				{
					Body: &gmailv1.MessagePartBody{AttachmentId: "att-2"},
				},
			},
		}

		parsed := ParsePayload(payload)
		if len(parsed.Attachments) != 2 {
			t.Fatalf("Expected 2 attachments, got %d", len(parsed.Attachments))
		}

		first := parsed.Attachments[0]
		if first.AttachmentID != "att-1" || first.Filename != "invoice.pdf" ||
			first.MimeType != "application/pdf" || first.Size != 1024 {
			t.Errorf("Unexpected first descriptor: %+v", first)
		}

		second := parsed.Attachments[1]
		if second.Filename != "attachment" {
			t.Errorf("Expected default filename, got %q", second.Filename)
		}
		if second.MimeType != "application/octet-stream" {
			t.Errorf("Expected default mime type, got %q", second.MimeType)
		}
		if second.Size != 0 {
			t.Errorf("Expected default size 0, got %d", second.Size)
		}
	})

	t.Run("attachment parts are not recursed into", func(t *testing.T) {
		payload := &gmailv1.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmailv1.MessagePart{
				{
					MimeType: "message/rfc822",
					Filename: "forwarded.eml",
					Body:     &gmailv1.MessagePartBody{AttachmentId: "att-fwd"},
					Parts: []*gmailv1.MessagePart{
						textPart("text/html", "<p>forwarded body</p>"),
					},
				},
			},
		}

		parsed := ParsePayload(payload)
		if parsed.BodyHTML != "" {
			t.Errorf("Expected no body from inside an attachment part, got %q", parsed.BodyHTML)
		}
		if len(parsed.Attachments) != 1 {
			t.Fatalf("Expected 1 attachment, got %d", len(parsed.Attachments))
		}
	})
}

func TestParsePayloadIdempotent(t *testing.T) {
	payload := &gmailv1.MessagePart{
		Headers: []*gmailv1.MessagePartHeader{
			{Name: "Subject", Value: "hi"},
			{Name: "Subject", Value: "again"},
		},
		MimeType: "multipart/mixed",
		Parts: []*gmailv1.MessagePart{
			textPart("text/plain", "body"),
			{Filename: "a.txt", MimeType: "text/plain", Body: &gmailv1.MessagePartBody{AttachmentId: "a1", Size: 5}},
		},
	}

	first := ParsePayload(payload)
	second := ParsePayload(payload)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results on repeat parse:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestParsePayloadDepthLimit(t *testing.T) {
	leaf := textPart("text/html", "<p>deep</p>")
	root := leaf
	for i := 0; i < maxPartDepth+10; i++ {
		root = &gmailv1.MessagePart{MimeType: "multipart/mixed", Parts: []*gmailv1.MessagePart{root}}
	}

	parsed := ParsePayload(root)
	if parsed.BodyHTML != "" {
		t.Errorf("Expected walk to stop at the depth limit, got body %q", parsed.BodyHTML)
	}
}
