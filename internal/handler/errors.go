package handler

import (
	"errors"
	"net/http"

	"transaction-certification-service/internal/domain"
	"transaction-certification-service/pkg/httputil"
)

// writeDomainError はドメインエラーをHTTPステータスとエラーコードへ写像する。
// 未知のエラーは内部詳細を漏らさずに500を返す。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		httputil.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be positive")
	case errors.Is(err, domain.ErrAmountOutOfRange):
		httputil.Error(w, http.StatusBadRequest, "AMOUNT_OUT_OF_RANGE", "amount exceeds supported range")
	case errors.Is(err, domain.ErrSelfTransfer):
		httputil.Error(w, http.StatusBadRequest, "SELF_TRANSFER", "sender and receiver must differ")
	case errors.Is(err, domain.ErrHashMismatch):
		httputil.Error(w, http.StatusBadRequest, "HASH_MISMATCH", "client hash does not match")
	case errors.Is(err, domain.ErrSignatureMismatch):
		httputil.Error(w, http.StatusBadRequest, "SIGNATURE_MISMATCH", "client signature does not verify")
	case errors.Is(err, domain.ErrInvalidLifetime):
		httputil.Error(w, http.StatusBadRequest, "INVALID_LIFETIME", "lifetime out of range")
	case errors.Is(err, domain.ErrInvalidPIN):
		httputil.Error(w, http.StatusUnauthorized, "INVALID_PIN", "transfer PIN does not match")
	case errors.Is(err, domain.ErrAccountNotFound):
		httputil.Error(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	case errors.Is(err, domain.ErrTransactionNotFound):
		httputil.Error(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	case errors.Is(err, domain.ErrCertificateNotFound):
		httputil.Error(w, http.StatusNotFound, "CERTIFICATE_NOT_FOUND", "certificate not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		httputil.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, domain.ErrAccountInactive):
		httputil.Error(w, http.StatusConflict, "ACCOUNT_INACTIVE", "account is inactive")
	case errors.Is(err, domain.ErrCAAlreadyInitialized):
		httputil.Error(w, http.StatusConflict, "CA_ALREADY_INITIALIZED", "certificate authority already initialized")
	case errors.Is(err, domain.ErrCANotInitialized):
		httputil.Error(w, http.StatusConflict, "CA_NOT_INITIALIZED", "certificate authority not initialized")
	case errors.Is(err, domain.ErrRotationNotDue):
		httputil.Error(w, http.StatusConflict, "ROTATION_NOT_DUE", "key rotation not due")
	case errors.Is(err, domain.ErrInsufficientFunds):
		httputil.Error(w, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "insufficient funds")
	case errors.Is(err, domain.ErrMissingPublicKey):
		httputil.Error(w, http.StatusUnprocessableEntity, "MISSING_PUBLIC_KEY", "account has no public key")
	case errors.Is(err, domain.ErrNoCustodialKey):
		httputil.Error(w, http.StatusUnprocessableEntity, "NO_CUSTODIAL_KEY", "account has no custodial private key")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
