package gmail

import (
	"encoding/base64"
	"log"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/sharedmail/backend/internal/models"
)

// maxPartDepth bounds the MIME part walk. Real messages nest a handful of
// levels; anything deeper is hostile input.
const maxPartDepth = 100

// recognizedHeaders are normalized to lower-case keys. Every other header
// keeps the casing the provider delivered.
var recognizedHeaders = map[string]bool{
	"subject":     true,
	"from":        true,
	"to":          true,
	"cc":          true,
	"bcc":         true,
	"message-id":  true,
	"in-reply-to": true,
	"references":  true,
	"date":        true,
}

// AttachmentDescriptor identifies an attachment part without its bytes.
// The bytes are fetched separately through the provider's attachment
// endpoint using AttachmentID.
type AttachmentDescriptor struct {
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// ParsedMessage is the normalized form of a Gmail message payload.
type ParsedMessage struct {
	Headers     models.Headers
	BodyHTML    string
	BodyText    string
	Attachments []AttachmentDescriptor
}

// ParsePayload normalizes a full-format Gmail message payload: headers from
// the payload's own ordered header list, bodies from the first matching
// text part, attachment parts collected as descriptors. Safe to call on the
// same payload repeatedly with identical results.
func ParsePayload(payload *gmailv1.MessagePart) *ParsedMessage {
	parsed := &ParsedMessage{
		Headers:     make(models.Headers),
		Attachments: []AttachmentDescriptor{},
	}
	if payload == nil {
		return parsed
	}

	for _, header := range payload.Headers {
		if header == nil {
			continue
		}
		key := header.Name
		if recognizedHeaders[strings.ToLower(key)] {
			key = strings.ToLower(key)
		}
		parsed.Headers.Add(key, header.Value)
	}

	walkPart(payload, parsed, 0)

	if parsed.BodyHTML == "" && parsed.BodyText != "" {
		parsed.BodyHTML = "<pre>" + escapeHTML(parsed.BodyText) + "</pre>"
	}

	return parsed
}

func walkPart(part *gmailv1.MessagePart, parsed *ParsedMessage, depth int) {
	if part == nil || depth > maxPartDepth {
		return
	}

	// Attachment parts are terminal: record the descriptor, never recurse.
	if part.Body != nil && part.Body.AttachmentId != "" {
		descriptor := AttachmentDescriptor{
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			Size:         part.Body.Size,
		}
		if descriptor.Filename == "" {
			descriptor.Filename = "attachment"
		}
		if descriptor.MimeType == "" {
			descriptor.MimeType = "application/octet-stream"
		}
		parsed.Attachments = append(parsed.Attachments, descriptor)
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/html":
			if parsed.BodyHTML == "" {
				parsed.BodyHTML = decodeBodyData(part.Body.Data)
			}
		case "text/plain":
			if parsed.BodyText == "" {
				parsed.BodyText = decodeBodyData(part.Body.Data)
			}
		}
	}

	for _, child := range part.Parts {
		walkPart(child, parsed, depth+1)
	}
}

// decodeBodyData decodes the provider's URL-safe base64 body data, which
// arrives without padding.
func decodeBodyData(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		log.Printf("Warning: Failed to decode message body data: %v", err)
		return ""
	}
	return string(decoded)
}

// escapeHTML covers the five characters that matter when wrapping plain
// text in a <pre> block. Ampersand first so entities are not double-escaped.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
