// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// WriteAuditLog はAPI操作の監査ログを出力する。
// 取引単位の監査証跡（transaction_logs）とは別に、API層の操作記録として残す。
func WriteAuditLog(ctx context.Context, operation, subject, result string) {
	slog.InfoContext(ctx, "api operation completed",
		"operation", operation,
		"subject", subject,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
