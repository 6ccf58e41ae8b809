package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/api"
	"github.com/sharedmail/backend/internal/auth"
	"github.com/sharedmail/backend/internal/config"
	"github.com/sharedmail/backend/internal/crypto"
	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/gmail"
	"github.com/sharedmail/backend/internal/oauthstate"
	"github.com/sharedmail/backend/internal/presence"
	"github.com/sharedmail/backend/internal/storage"
	"github.com/sharedmail/backend/internal/tokens"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	blobs, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	server := NewServer(cfg, pool, blobs)

	address := ":" + cfg.Port
	log.Printf("Shared-inbox backend starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns the HTTP handler for the API server.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool, blobs storage.BlobStore) http.Handler {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	gmailClient := gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	vault := tokens.NewVault(dbPool, encryptor, gmailClient)
	syncService := gmail.NewService(dbPool, vault, gmailClient, blobs)
	stateCodec := oauthstate.NewCodec(encryptor)
	registry := presence.NewRegistry(50)
	authMiddleware := auth.NewMiddleware(dbPool, nil)

	cronHandler := api.NewCronHandler(cfg.CronSecret, syncService)
	oauthHandler := api.NewOAuthHandler(dbPool, gmailClient, stateCodec, vault)
	inboxesHandler := api.NewInboxesHandler(dbPool, vault)
	conversationsHandler := api.NewConversationsHandler(dbPool)
	replyHandler := api.NewReplyHandler(dbPool, vault, gmailClient)
	presenceHandler := api.NewPresenceHandler(dbPool, registry)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	// The scheduler authenticates with the cron secret, not a bearer token.
	mux.Handle("/api/v1/cron/gmail-sync", http.HandlerFunc(cronHandler.TriggerSync))

	mux.Handle("/api/v1/me", authMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.HandleMe(w, r)
	})))

	mux.Handle("/api/v1/oauth/google/start", authMiddleware.RequireAuth(http.HandlerFunc(oauthHandler.Start)))
	// Google redirects here; the encrypted state blob is the authentication.
	mux.Handle("/api/v1/oauth/google/callback", http.HandlerFunc(oauthHandler.Callback))

	mux.Handle("/api/v1/inboxes", authMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			inboxesHandler.List(w, r)
		case http.MethodPost:
			inboxesHandler.Create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Handle /api/v1/inboxes/{inbox_id}/disconnect
	mux.Handle("/api/v1/inboxes/", authMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/inboxes/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "disconnect" && r.Method == http.MethodPost {
			inboxesHandler.Disconnect(w, r, parts[0])
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
	})))

	mux.Handle("/api/v1/conversations", authMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		conversationsHandler.List(w, r)
	})))

	// Handle /api/v1/conversations/{conversation_id}[/action]
	mux.Handle("/api/v1/conversations/", authMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/")
		parts := strings.Split(rest, "/")
		if parts[0] == "" {
			http.Error(w, "conversation id is required", http.StatusBadRequest)
			return
		}
		conversationID := parts[0]

		if len(parts) == 1 {
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			conversationsHandler.Get(w, r, conversationID)
			return
		}

		if len(parts) != 2 {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "comments":
			switch r.Method {
			case http.MethodGet:
				conversationsHandler.ListComments(w, r, conversationID)
			case http.MethodPost:
				conversationsHandler.CreateComment(w, r, conversationID)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		switch parts[1] {
		case "status":
			conversationsHandler.SetStatus(w, r, conversationID)
		case "assign":
			conversationsHandler.Assign(w, r, conversationID)
		case "snooze":
			conversationsHandler.Snooze(w, r, conversationID)
		case "tag":
			conversationsHandler.Tag(w, r, conversationID)
		case "untag":
			conversationsHandler.Untag(w, r, conversationID)
		case "reply":
			replyHandler.Send(w, r, conversationID)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})))

	// WebSocket handler handles its own authentication via query parameter
	// (since browsers can't set headers on WebSocket connections).
	mux.Handle("/api/v1/presence", http.HandlerFunc(presenceHandler.Handle))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Shared-inbox API is running")
}
