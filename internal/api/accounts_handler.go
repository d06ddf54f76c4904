package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/crypto"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/models"
)

// AccountsHandler handles mail account management requests. Passwords arrive in
// plaintext over the API and are stored encrypted.
type AccountsHandler struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
}

// NewAccountsHandler creates a new AccountsHandler instance.
func NewAccountsHandler(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *AccountsHandler {
	return &AccountsHandler{
		pool:      pool,
		encryptor: encryptor,
	}
}

// AccountRequest is the create/update payload for a mail account.
type AccountRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	FromAddress  string `json:"from_address"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	DailyLimit   int    `json:"daily_limit"`
	Active       *bool  `json:"active,omitempty"`
	IMAPHost     string `json:"imap_host,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPUsername string `json:"imap_username,omitempty"`
	IMAPPassword string `json:"imap_password,omitempty"`
}

func (req *AccountRequest) validate() error {
	if req.Username == "" || req.FromAddress == "" || req.SMTPHost == "" {
		return errors.New("username, from_address, and smtp_host are required")
	}
	return nil
}

// Create registers a new sending identity.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := req.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Password == "" {
		http.Error(w, "password is required", http.StatusBadRequest)
		return
	}

	encrypted, err := h.encryptor.Encrypt(req.Password)
	if err != nil {
		log.Printf("AccountsHandler: Failed to encrypt password: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	account := &models.MailAccount{
		Username:          req.Username,
		FromAddress:       req.FromAddress,
		SMTPHost:          req.SMTPHost,
		SMTPPort:          req.SMTPPort,
		DailyLimit:        req.DailyLimit,
		Active:            true,
		IMAPHost:          req.IMAPHost,
		IMAPPort:          req.IMAPPort,
		IMAPUsername:      req.IMAPUsername,
		EncryptedPassword: encrypted,
	}
	if account.SMTPPort == 0 {
		account.SMTPPort = 465
	}
	if account.IMAPPort == 0 {
		account.IMAPPort = 993
	}
	if account.DailyLimit == 0 {
		account.DailyLimit = 100
	}
	if req.Active != nil {
		account.Active = *req.Active
	}

	if req.IMAPPassword != "" {
		encryptedIMAP, err := h.encryptor.Encrypt(req.IMAPPassword)
		if err != nil {
			log.Printf("AccountsHandler: Failed to encrypt IMAP password: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		account.EncryptedIMAPPassword = encryptedIMAP
	}

	if err := db.CreateAccount(ctx, h.pool, account); err != nil {
		log.Printf("AccountsHandler: Failed to create account: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// List returns all accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := db.ListAccounts(ctx, h.pool)
	if err != nil {
		log.Printf("AccountsHandler: Failed to list accounts: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// Update edits the management-owned fields of an account, re-encrypting any
// supplied passwords.
func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := accountIDFromPath(r)
	if accountID == "" {
		http.Error(w, "account ID is required", http.StatusBadRequest)
		return
	}

	account, err := db.GetAccount(ctx, h.pool, accountID)
	if errors.Is(err, db.ErrAccountNotFound) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("AccountsHandler: Failed to get account: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username != "" {
		account.Username = req.Username
	}
	if req.FromAddress != "" {
		account.FromAddress = req.FromAddress
	}
	if req.SMTPHost != "" {
		account.SMTPHost = req.SMTPHost
	}
	if req.SMTPPort != 0 {
		account.SMTPPort = req.SMTPPort
	}
	if req.DailyLimit != 0 {
		account.DailyLimit = req.DailyLimit
	}
	if req.Active != nil {
		account.Active = *req.Active
	}
	if req.IMAPHost != "" {
		account.IMAPHost = req.IMAPHost
	}
	if req.IMAPPort != 0 {
		account.IMAPPort = req.IMAPPort
	}
	if req.IMAPUsername != "" {
		account.IMAPUsername = req.IMAPUsername
	}

	if err := db.UpdateAccount(ctx, h.pool, account); err != nil {
		log.Printf("AccountsHandler: Failed to update account: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if req.Password != "" {
		encrypted, err := h.encryptor.Encrypt(req.Password)
		if err != nil {
			log.Printf("AccountsHandler: Failed to encrypt password: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if err := db.UpdateAccountPassword(ctx, h.pool, accountID, encrypted); err != nil {
			log.Printf("AccountsHandler: Failed to update password: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	if req.IMAPPassword != "" {
		encrypted, err := h.encryptor.Encrypt(req.IMAPPassword)
		if err != nil {
			log.Printf("AccountsHandler: Failed to encrypt IMAP password: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if err := db.UpdateAccountIMAPPassword(ctx, h.pool, accountID, encrypted); err != nil {
			log.Printf("AccountsHandler: Failed to update IMAP password: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, account)
}

// Delete removes an account. Accounts referenced by delivery history cannot be
// deleted.
func (h *AccountsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := accountIDFromPath(r)
	if accountID == "" {
		http.Error(w, "account ID is required", http.StatusBadRequest)
		return
	}

	err := db.DeleteAccount(ctx, h.pool, accountID)
	if errors.Is(err, db.ErrAccountNotFound) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("AccountsHandler: Failed to delete account: %v", err)
		http.Error(w, "Account is referenced by delivery history", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// accountIDFromPath extracts the account ID from /api/v1/accounts/{id}.
func accountIDFromPath(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/")
	if path == r.URL.Path {
		return ""
	}
	return strings.Trim(path, "/")
}
