package gmail

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"
)

// ReplyInput is everything needed to build an outbound reply. InReplyTo
// and References come from the latest stored message on the conversation
// so threading survives in the recipient's client too, not just in Gmail.
type ReplyInput struct {
	From       string
	To         []string
	Cc         []string
	Subject    string
	TextBody   string
	HTMLBody   string
	InReplyTo  string
	References string
}

// BuildReply assembles a raw RFC 822 reply message ready for the
// provider's send endpoint.
func BuildReply(input ReplyInput) ([]byte, error) {
	if len(input.To) == 0 {
		return nil, fmt.Errorf("reply requires at least one recipient")
	}

	builder := enmime.Builder().
		From("", input.From).
		ToAddrs(toAddresses(input.To)).
		Subject(input.Subject).
		Text([]byte(input.TextBody))

	if len(input.Cc) > 0 {
		builder = builder.CCAddrs(toAddresses(input.Cc))
	}
	if input.HTMLBody != "" {
		builder = builder.HTML([]byte(input.HTMLBody))
	}
	if input.InReplyTo != "" {
		builder = builder.Header("In-Reply-To", input.InReplyTo)
	}
	if input.References != "" {
		builder = builder.Header("References", input.References)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build reply message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode reply message: %w", err)
	}
	return buf.Bytes(), nil
}

// ReplySubject prepends "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	if subject == "" {
		return "Re: (no subject)"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func toAddresses(addrs []string) []mail.Address {
	out := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, mail.Address{Address: a})
	}
	return out
}
