package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/middleware"
	"transaction-certification-service/internal/usecase"
	"transaction-certification-service/pkg/httputil"
)

// CertificateHandler は認証局と証明書APIのHTTPハンドラ。
type CertificateHandler struct {
	service *usecase.CertificateService
}

// NewCertificateHandler は新しいCertificateHandlerを生成する。
func NewCertificateHandler(service *usecase.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// InitializeCARequest はCA初期化リクエストの形式。
type InitializeCARequest struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Country      string `json:"country"`
}

// CAResponse はCAメタデータのレスポンス形式。公開鍵のみを含む。
type CAResponse struct {
	Name          string `json:"name"`
	Organization  string `json:"organization"`
	Country       string `json:"country"`
	PublicKey     string `json:"public_key"`
	Fingerprint   string `json:"fingerprint"`
	KeySize       int    `json:"key_size"`
	EstablishedAt string `json:"established_at"`
}

// CertificateResponse は証明書のレスポンス形式。
type CertificateResponse struct {
	TransactionID string `json:"transaction_id"`
	SerialNumber  string `json:"serial_number"`
	IssuerDN      string `json:"issuer_dn"`
	SubjectDN     string `json:"subject_dn"`
	Envelope      string `json:"envelope"`
	IssuedAt      string `json:"issued_at"`
	ExpiresAt     string `json:"expires_at"`
}

func toCAResponse(ca *domain.CertificateAuthority) CAResponse {
	return CAResponse{
		Name:          ca.Name,
		Organization:  ca.Organization,
		Country:       ca.Country,
		PublicKey:     ca.PublicKey,
		Fingerprint:   ca.Fingerprint,
		KeySize:       ca.KeySize,
		EstablishedAt: ca.EstablishedAt.Format(time.RFC3339),
	}
}

// InitializeCA は認証局を確立する。
func (h *CertificateHandler) InitializeCA(w http.ResponseWriter, r *http.Request) {
	var req InitializeCARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if req.Name == "" || req.Organization == "" || len(req.Country) != 2 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CA_PARAMS", "name, organization and 2-letter country are required")
		return
	}

	ca, err := h.service.InitializeCA(r.Context(), req.Name, req.Organization, req.Country)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "INITIALIZE_CA", req.Name, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "INITIALIZE_CA", req.Name, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toCAResponse(ca))
}

// GetCA は現在activeなCAを取得する。
func (h *CertificateHandler) GetCA(w http.ResponseWriter, r *http.Request) {
	ca, err := h.service.ActiveCA(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toCAResponse(ca))
}

// GetCertificate は取引の証明書を取得する。
func (h *CertificateHandler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transaction_id")

	cert, err := h.service.GetByTransactionID(r.Context(), transactionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, CertificateResponse{
		TransactionID: cert.TransactionID,
		SerialNumber:  cert.SerialNumber,
		IssuerDN:      cert.IssuerDN,
		SubjectDN:     cert.SubjectDN,
		Envelope:      cert.Envelope,
		IssuedAt:      cert.IssuedAt.Format(time.RFC3339),
		ExpiresAt:     cert.ExpiresAt.Format(time.RFC3339),
	})
}

// VerifyCertificate は取引の証明書を検証し、結果をboolで返す。
func (h *CertificateHandler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transaction_id")

	valid, err := h.service.Verify(r.Context(), transactionID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VERIFY_CERTIFICATE", transactionID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "VERIFY_CERTIFICATE", transactionID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
