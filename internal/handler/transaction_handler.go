// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/middleware"
	"transaction-certification-service/internal/usecase"
	"transaction-certification-service/pkg/httputil"
)

// actorFromRequest は監査証跡に残す操作主体を決める。
func actorFromRequest(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}

// TransactionHandler は取引APIのHTTPハンドラ。
type TransactionHandler struct {
	service *usecase.TransactionService
}

// NewTransactionHandler は新しいTransactionHandlerを生成する。
func NewTransactionHandler(service *usecase.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// CreateTransactionRequest は取引作成リクエストの形式。
type CreateTransactionRequest struct {
	SenderAccountID       string `json:"sender_account_id"`
	ReceiverAccountNumber string `json:"receiver_account_number"`
	Amount                string `json:"amount"`
	TransferPIN           string `json:"transfer_pin"`
	Hash                  string `json:"hash,omitempty"`
	Signature             string `json:"signature,omitempty"`
}

// TransactionResponse は取引のレスポンス形式。
type TransactionResponse struct {
	ID                string `json:"id"`
	SenderAccountID   string `json:"sender_account_id"`
	ReceiverAccountID string `json:"receiver_account_id"`
	AmountCents       int64  `json:"amount_cents"`
	Hash              string `json:"hash"`
	SignatureScheme   string `json:"signature_scheme"`
	Status            string `json:"status"`
	RejectionReason   string `json:"rejection_reason,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// SettlementResponse は決済結果のレスポンス形式。
type SettlementResponse struct {
	Result      string               `json:"result"`
	Reason      string               `json:"reason,omitempty"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
}

// AuditLogEntry は監査証跡エントリのレスポンス形式。
type AuditLogEntry struct {
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
	Actor     string `json:"actor,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toTransactionResponse(txn *domain.Transaction) *TransactionResponse {
	if txn == nil {
		return nil
	}
	return &TransactionResponse{
		ID:                txn.ID,
		SenderAccountID:   txn.SenderAccountID,
		ReceiverAccountID: txn.ReceiverAccountID,
		AmountCents:       txn.AmountCents,
		Hash:              txn.TransactionHash,
		SignatureScheme:   string(txn.SignatureScheme),
		Status:            string(txn.Status),
		RejectionReason:   txn.RejectionReason,
		CreatedAt:         txn.CreatedAt.Format(time.RFC3339),
	}
}

// Create は取引を作成する。
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount is not a decimal number")
		return
	}

	txn, err := h.service.Create(r.Context(), usecase.CreateTransactionInput{
		SenderAccountID:       req.SenderAccountID,
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Amount:                amount,
		TransferPIN:           req.TransferPIN,
		ClientHash:            req.Hash,
		ClientSignature:       req.Signature,
		Actor:                 actorFromRequest(r),
	})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_TRANSACTION", req.SenderAccountID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_TRANSACTION", txn.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toTransactionResponse(txn))
}

// Settle は取引を決済する。
func (h *TransactionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transaction_id")

	outcome, err := h.service.Settle(r.Context(), transactionID, actorFromRequest(r))
	if err != nil && errors.Is(err, domain.ErrTransactionNotFound) {
		middleware.WriteAuditLog(r.Context(), "SETTLE_TRANSACTION", transactionID, "FAILED")
		writeDomainError(w, err)
		return
	}

	resp := SettlementResponse{
		Result:      string(outcome.Kind),
		Reason:      outcome.Reason,
		Transaction: toTransactionResponse(outcome.Transaction),
	}
	switch outcome.Kind {
	case domain.OutcomeFailed:
		middleware.WriteAuditLog(r.Context(), "SETTLE_TRANSACTION", transactionID, "FAILED")
		httputil.JSON(w, http.StatusInternalServerError, resp)
	default:
		middleware.WriteAuditLog(r.Context(), "SETTLE_TRANSACTION", transactionID, "SUCCESS")
		httputil.JSON(w, http.StatusOK, resp)
	}
}

// Get は取引を取得する。
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transaction_id")

	txn, err := h.service.Get(r.Context(), transactionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toTransactionResponse(txn))
}

// AuditTrail は取引の監査証跡を取得する。
func (h *TransactionHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transaction_id")

	trail, err := h.service.AuditTrail(r.Context(), transactionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries := make([]AuditLogEntry, len(trail))
	for i, entry := range trail {
		entries[i] = AuditLogEntry{
			Action:    entry.Action,
			Details:   entry.Details,
			Actor:     entry.Actor,
			CreatedAt: entry.CreatedAt.Format(time.RFC3339),
		}
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}
