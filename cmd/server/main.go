package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/api"
	"github.com/mailwise/mailwise/internal/auth"
	"github.com/mailwise/mailwise/internal/config"
	"github.com/mailwise/mailwise/internal/crypto"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/dispatch"
	"github.com/mailwise/mailwise/internal/ingest"
	"github.com/mailwise/mailwise/internal/smtp"
	ws "github.com/mailwise/mailwise/internal/websocket"
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

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	hub := ws.NewHub(10)
	dispatcher := dispatch.New(pool, encryptor, smtp.NewClient(), hub, cfg)
	ingestor := ingest.New(pool, encryptor, hub, cfg)

	// Periodic trigger. The manual trigger goes through the same dispatcher,
	// so both share the store's atomic claim.
	go dispatcher.Run(ctx)

	if cfg.IdleListeners {
		startIdleListeners(ctx, pool, ingestor)
	}

	server := NewServer(cfg, pool, dispatcher, ingestor, encryptor, hub)

	address := ":" + cfg.Port
	log.Printf("Mailwise server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns the HTTP handler for the Mailwise API server.
func NewServer(cfg *config.Config, pool *pgxpool.Pool, dispatcher *dispatch.Dispatcher, ingestor *ingest.Ingestor, encryptor *crypto.Encryptor, hub *ws.Hub) http.Handler {
	requireAuth := auth.RequireToken(cfg.APIToken)

	queueHandler := api.NewQueueHandler(pool)
	accountsHandler := api.NewAccountsHandler(pool, encryptor)
	dispatchHandler := api.NewDispatchHandler(dispatcher)
	ingestHandler := api.NewIngestHandler(pool, ingestor)
	deliveriesHandler := api.NewDeliveriesHandler(pool)
	wsHandler := api.NewWebSocketHandler(hub, cfg.APIToken)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/queue", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			queueHandler.List(w, r)
		case http.MethodPost:
			queueHandler.Import(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/api/v1/accounts", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accountsHandler.List(w, r)
		case http.MethodPost:
			accountsHandler.Create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Handle /api/v1/accounts/{id}
	mux.Handle("/api/v1/accounts/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			accountsHandler.Update(w, r)
		case http.MethodDelete:
			accountsHandler.Delete(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/api/v1/dispatch", requireAuth(http.HandlerFunc(dispatchHandler.Trigger)))

	// Handle /api/v1/dispatch/{item_id}
	mux.Handle("/api/v1/dispatch/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		itemID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/dispatch/"), "/")
		if itemID == "" {
			http.Error(w, "Queue item ID is required", http.StatusBadRequest)
			return
		}
		dispatchHandler.TriggerItem(w, r, itemID)
	})))

	mux.Handle("/api/v1/ingest", requireAuth(http.HandlerFunc(ingestHandler.Trigger)))
	mux.Handle("/api/v1/deliveries", requireAuth(http.HandlerFunc(deliveriesHandler.List)))
	mux.Handle("/api/v1/received/", requireAuth(http.HandlerFunc(ingestHandler.ListReceived)))
	// WebSocket handler handles its own authentication via query parameter
	// (since browsers can't set headers on WebSocket connections).
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	return mux
}

// startIdleListeners starts an IMAP IDLE watcher for every active account with
// inbound credentials.
func startIdleListeners(ctx context.Context, pool *pgxpool.Pool, ingestor *ingest.Ingestor) {
	accounts, err := db.ListActiveAccounts(ctx, pool)
	if err != nil {
		log.Printf("Failed to list accounts for IDLE listeners: %v", err)
		return
	}

	for _, account := range accounts {
		if !account.HasInbox() {
			continue
		}
		log.Printf("Starting IDLE listener for %s", account.FromAddress)
		go ingestor.StartIdleListener(ctx, account.ID)
	}
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mailwise API is running")
}
