package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"transaction-certification-service/internal/middleware"
	"transaction-certification-service/internal/usecase"
	"transaction-certification-service/pkg/httputil"
)

// KeyHandler は鍵ローテーションと短命鍵APIのHTTPハンドラ。
type KeyHandler struct {
	rotation  *usecase.RotationService
	ephemeral *usecase.EphemeralService
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(rotation *usecase.RotationService, ephemeral *usecase.EphemeralService) *KeyHandler {
	return &KeyHandler{
		rotation:  rotation,
		ephemeral: ephemeral,
	}
}

// RotateRequest はローテーションリクエストの形式。
type RotateRequest struct {
	Force bool `json:"force"`
}

// RotateUserKey は口座の鍵ペアをローテーションする。
func (h *KeyHandler) RotateUserKey(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	var req RotateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
			return
		}
	}

	account, err := h.rotation.RotateUserKey(r.Context(), accountID, req.Force)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_USER_KEY", accountID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_USER_KEY", accountID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"account_id":  account.ID,
		"key_version": account.KeyVersion,
		"public_key":  account.PublicKey,
		"rotated_at":  account.KeyRotatedAt.Format(time.RFC3339),
	})
}

// RotateCAKey はCA鍵をローテーションする。
func (h *KeyHandler) RotateCAKey(w http.ResponseWriter, r *http.Request) {
	var req RotateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
			return
		}
	}

	ca, err := h.rotation.RotateCAKey(r.Context(), req.Force)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_CA_KEY", "ca", "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_CA_KEY", "ca", "SUCCESS")
	httputil.JSON(w, http.StatusOK, toCAResponse(ca))
}

// RegisterSessionRequest は短命鍵登録リクエストの形式。
type RegisterSessionRequest struct {
	AccountID       string `json:"account_id"`
	PublicKey       string `json:"public_key"`
	LifetimeSeconds int    `json:"lifetime_seconds,omitempty"`
}

// SessionResponse は短命鍵セッションのレスポンス形式。
type SessionResponse struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// RegisterSession は短命公開鍵を登録する。
func (h *KeyHandler) RegisterSession(w http.ResponseWriter, r *http.Request) {
	var req RegisterSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	key, err := h.ephemeral.Register(r.Context(), req.AccountID, req.PublicKey, req.LifetimeSeconds)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REGISTER_SESSION", req.AccountID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REGISTER_SESSION", req.AccountID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, SessionResponse{
		SessionID: key.SessionID,
		ExpiresAt: key.ExpiresAt.Format(time.RFC3339),
	})
}

// VerifySessionRequest は短命鍵での署名検証リクエストの形式。
type VerifySessionRequest struct {
	Data      string `json:"data"`      // Base64
	Signature string `json:"signature"` // Base64
}

// VerifySession はセッションの短命鍵で署名を検証する。
func (h *KeyHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req VerifySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "data is not valid base64")
		return
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "signature is not valid base64")
		return
	}

	valid, err := h.ephemeral.Verify(r.Context(), sessionID, data, signature)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// DeactivateSession は短命鍵を無効化する。
func (h *KeyHandler) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if err := h.ephemeral.Deactivate(r.Context(), sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	middleware.WriteAuditLog(r.Context(), "DEACTIVATE_SESSION", sessionID, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}
