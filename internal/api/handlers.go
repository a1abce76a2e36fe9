/**
 * @description
 * This file contains the HTTP handlers for the transaction-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write JSON responses. A rejected transaction is a successful response
 * (201 with status REJECTED and a reason), clearly distinguished from an
 * infrastructure or programmer error.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models, sentinel errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/melodyhub/transaction-service/internal/app"
	"github.com/melodyhub/transaction-service/internal/domain"
	"github.com/melodyhub/transaction-service/internal/store"
)

// TransactionHandlers holds the application service that handlers will use.
type TransactionHandlers struct {
	service *app.Service
}

// NewTransactionHandlers creates a new instance of TransactionHandlers.
func NewTransactionHandlers(service *app.Service) *TransactionHandlers {
	return &TransactionHandlers{service: service}
}

type transactionResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Amount           string    `json:"amount"`
	SubscriptionType string    `json:"subscription_type"`
	Status           string    `json:"status"`
	FraudReason      *string   `json:"fraud_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func buildTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:               tx.ID.String(),
		UserID:           tx.UserID.String(),
		Amount:           tx.Amount.StringFixed(2),
		SubscriptionType: string(tx.SubscriptionType),
		Status:           string(tx.Status),
		FraudReason:      tx.FraudReason,
		CreatedAt:        tx.CreatedAt,
		UpdatedAt:        tx.UpdatedAt,
	}
}

// CreateTransactionHandler handles subscription purchase requests.
func (h *TransactionHandlers) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SubscriptionType == "" {
		h.writeError(w, http.StatusBadRequest, "subscription_type is required")
		return
	}
	if req.CreditCardID <= 0 {
		h.writeError(w, http.StatusBadRequest, "credit_card_id is required")
		return
	}

	tx, err := h.service.CreateTransaction(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownSubscriptionType):
			h.writeError(w, http.StatusBadRequest, "Unknown subscription type")
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			log.Printf("level=error component=api msg=\"create transaction failed\" user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to process transaction")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, buildTransactionResponse(tx))
}

// GetTransactionHandler returns a single transaction owned by the caller.
func (h *TransactionHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	tx, err := h.service.GetTransactionByID(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		log.Printf("level=error component=api msg=\"get transaction failed\" transaction_id=%s err=%v", transactionID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch transaction")
		return
	}
	if tx.UserID != userID {
		h.writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	h.writeJSON(w, http.StatusOK, buildTransactionResponse(tx))
}

// ListTransactionsHandler returns the caller's transactions, newest first.
func (h *TransactionHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	transactions, err := h.service.ListTransactionsByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"list transactions failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list transactions")
		return
	}

	responses := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		responses = append(responses, buildTransactionResponse(&transactions[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

func (h *TransactionHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *TransactionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
