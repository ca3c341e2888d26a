package domain

import "time"

// TransactionLog は追記専用の監査ログエントリを表す。変更・削除はしない。
type TransactionLog struct {
	ID            string
	TransactionID string
	Action        string
	Details       string
	Actor         string
	CreatedAt     time.Time
}

// 監査ログのアクション種別。
const (
	AuditActionCreated    = "CREATED"
	AuditActionApproved   = "APPROVED"
	AuditActionRejected   = "REJECTED"
	AuditActionFailed     = "FAILED"
	AuditActionCertIssued = "CERTIFICATE_ISSUED"
)
