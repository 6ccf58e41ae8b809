// Package presence tracks who is typing in which conversation. State is
// per-process and ephemeral: subscriptions live exactly as long as their
// websocket connection, and typing signals expire on their own.
package presence

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// typingTTL is how long a typing signal stays visible without renewal.
const typingTTL = 5 * time.Second

// Event is the wire format broadcast to a conversation's subscribers.
type Event struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}

// Client is one subscribed websocket connection.
type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// Conn returns the underlying websocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Registry holds typing state keyed by conversation id. Subscriptions are
// explicit: a client sees events only for conversations it subscribed to,
// and Unsubscribe must be called on websocket teardown.
type Registry struct {
	mu                 sync.RWMutex
	subscribers        map[string]map[*Client]struct{}
	typing             map[string]map[string]time.Time
	maxPerConversation int
}

// NewRegistry creates a Registry with a per-conversation subscriber limit.
func NewRegistry(maxPerConversation int) *Registry {
	if maxPerConversation <= 0 {
		maxPerConversation = 50
	}
	return &Registry{
		subscribers:        make(map[string]map[*Client]struct{}),
		typing:             make(map[string]map[string]time.Time),
		maxPerConversation: maxPerConversation,
	}
}

// Subscribe adds a websocket connection to a conversation's subscriber set.
// If the per-conversation limit is exceeded, the connection is closed and
// nil is returned.
func (r *Registry) Subscribe(conversationID, userID string, conn *websocket.Conn) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.subscribers[conversationID]
	if !ok {
		clients = make(map[*Client]struct{})
		r.subscribers[conversationID] = clients
	}

	if len(clients) >= r.maxPerConversation {
		log.Printf("presence: conversation %s exceeded max subscribers (%d), closing new connection", conversationID, r.maxPerConversation)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many subscribers for this conversation"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn, userID: userID}
	clients[client] = struct{}{}
	return client
}

// Unsubscribe removes a client from a conversation and closes its
// connection. When the user's last client leaves, their typing signal is
// dropped and the departure is broadcast.
func (r *Registry) Unsubscribe(conversationID string, client *Client) {
	if client == nil {
		return
	}

	r.mu.Lock()
	clients, ok := r.subscribers[conversationID]
	if !ok {
		r.mu.Unlock()
		_ = client.conn.Close()
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(r.subscribers, conversationID)
	}

	userStillPresent := false
	for c := range clients {
		if c.userID == client.userID {
			userStillPresent = true
			break
		}
	}

	wasTyping := false
	if !userStillPresent {
		if users, ok := r.typing[conversationID]; ok {
			if _, ok := users[client.userID]; ok {
				wasTyping = true
				delete(users, client.userID)
				if len(users) == 0 {
					delete(r.typing, conversationID)
				}
			}
		}
	}
	r.mu.Unlock()

	_ = client.conn.Close()

	if wasTyping {
		r.broadcast(Event{ConversationID: conversationID, UserID: client.userID, Typing: false})
	}
}

// SetTyping records a typing signal for the user (last write wins) and
// broadcasts it to the conversation's subscribers.
func (r *Registry) SetTyping(conversationID, userID string, typing bool) {
	r.mu.Lock()
	users, ok := r.typing[conversationID]
	if typing {
		if !ok {
			users = make(map[string]time.Time)
			r.typing[conversationID] = users
		}
		users[userID] = time.Now().Add(typingTTL)
	} else if ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(r.typing, conversationID)
		}
	}
	r.mu.Unlock()

	r.broadcast(Event{ConversationID: conversationID, UserID: userID, Typing: typing})
}

// TypingUsers returns the users with a live typing signal in the
// conversation.
func (r *Registry) TypingUsers(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var users []string
	for userID, expiry := range r.typing[conversationID] {
		if expiry.After(now) {
			users = append(users, userID)
		}
	}
	return users
}

// SubscriberCount returns the number of active subscribers for a
// conversation.
func (r *Registry) SubscriberCount(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers[conversationID])
}

func (r *Registry) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("presence: failed to marshal event: %v", err)
		return
	}

	r.mu.RLock()
	clients := make([]*Client, 0, len(r.subscribers[event.ConversationID]))
	for c := range r.subscribers[event.ConversationID] {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		if err := client.send(data); err != nil {
			log.Printf("presence: failed to write event for conversation %s: %v", event.ConversationID, err)
			// Best-effort cleanup: unsubscribe this client.
			go r.Unsubscribe(event.ConversationID, client)
		}
	}
}
