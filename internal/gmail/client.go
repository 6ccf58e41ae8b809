// Package gmail is the Gmail provider adapter: OAuth flow, message
// listing/fetching, payload normalization, reply building and the sync
// service that reconciles provider state into the database.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sharedmail/backend/internal/tokens"
)

const revokeEndpoint = "https://oauth2.googleapis.com/revoke"

// Client wraps the Gmail REST API for a single OAuth application. It is
// stateless with respect to inboxes: every call takes the inbox's token.
type Client struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewClient creates a Client for the given OAuth application credentials.
func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmailv1.GmailModifyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL returns the Google consent page URL carrying the opaque state.
// Offline access with forced consent so a refresh token is always issued.
func (c *Client) AuthURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for a credential bundle.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*tokens.StoredToken, error) {
	token, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return fromOAuthToken(token), nil
}

// RefreshToken exchanges the refresh token for a fresh access token.
// Satisfies tokens.Refresher.
func (c *Client) RefreshToken(ctx context.Context, token *tokens.StoredToken) (*tokens.StoredToken, error) {
	source := c.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return fromOAuthToken(fresh), nil
}

// Revoke invalidates both tokens at Google. Each revocation is attempted
// independently; the first error is returned after both attempts.
func (c *Client) Revoke(ctx context.Context, token *tokens.StoredToken) error {
	var firstErr error
	for _, t := range []string{token.AccessToken, token.RefreshToken} {
		if t == "" {
			continue
		}
		if err := c.revokeOne(ctx, t); err != nil {
			log.Printf("Warning: Token revocation failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Client) revokeOne(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call revoke endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// GetProfileEmail returns the email address of the connected account.
func (c *Client) GetProfileEmail(ctx context.Context, token *tokens.StoredToken) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch Gmail profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// ListMessageIDs returns ids of messages received after the watermark,
// newest first, capped at limit.
func (c *Client) ListMessageIDs(ctx context.Context, token *tokens.StoredToken, after time.Time, limit int64) ([]string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Messages.List("me").
		Q(fmt.Sprintf("after:%d", after.Unix())).
		MaxResults(limit).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage fetches a message in full format, payload included.
func (c *Client) GetMessage(ctx context.Context, token *tokens.StoredToken, id string) (*gmailv1.Message, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	return msg, nil
}

// GetAttachment fetches and decodes an attachment's bytes.
func (c *Client) GetAttachment(ctx context.Context, token *tokens.StoredToken, messageID, attachmentID string) ([]byte, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	body, err := svc.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment %s: %w", attachmentID, err)
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body.Data, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

// SendMessage sends a raw RFC 822 message on the given thread and returns
// the provider-assigned message and thread ids.
func (c *Client) SendMessage(ctx context.Context, token *tokens.StoredToken, raw []byte, threadID string) (messageID, sentThreadID string, err error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", "", err
	}

	msg := &gmailv1.Message{
		Raw:      base64.RawURLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}
	sent, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("failed to send message: %w", err)
	}
	return sent.Id, sent.ThreadId, nil
}

func (c *Client) service(ctx context.Context, token *tokens.StoredToken) (*gmailv1.Service, error) {
	source := oauth2.StaticTokenSource(toOAuthToken(token))
	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

func toOAuthToken(token *tokens.StoredToken) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if token.ExpiryDate != 0 {
		t.Expiry = time.UnixMilli(token.ExpiryDate)
	}
	return t
}

func fromOAuthToken(token *oauth2.Token) *tokens.StoredToken {
	stored := &tokens.StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		stored.ExpiryDate = token.Expiry.UnixMilli()
	}
	if scope, ok := token.Extra("scope").(string); ok {
		stored.Scope = scope
	}
	return stored
}
