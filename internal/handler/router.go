package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(tx *TransactionHandler, cert *CertificateHandler, key *KeyHandler) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", tx.Create)
			r.Get("/{transaction_id}", tx.Get)
			r.Post("/{transaction_id}/settle", tx.Settle)
			r.Get("/{transaction_id}/logs", tx.AuditTrail)
			r.Get("/{transaction_id}/certificate", cert.GetCertificate)
			r.Get("/{transaction_id}/certificate/verify", cert.VerifyCertificate)
		})

		r.Route("/ca", func(r chi.Router) {
			r.Post("/", cert.InitializeCA)
			r.Get("/", cert.GetCA)
			r.Post("/rotate", key.RotateCAKey)
		})

		r.Post("/accounts/{account_id}/keys/rotate", key.RotateUserKey)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", key.RegisterSession)
			r.Post("/{session_id}/verify", key.VerifySession)
			r.Delete("/{session_id}", key.DeactivateSession)
		})
	})

	return r
}
