package infra

import (
	"context"
	"log/slog"

	"transaction-certification-service/internal/domain"
)

// LogNotifier は決済通知を構造化ログに書き出すNotifier実装。
// メッセージング基盤への接続は口座保有者への通知経路が決まり次第差し替える。
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier は新しいLogNotifierを生成する。
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// NotifyDebit は送金元口座への引き落とし通知を出す。
func (n *LogNotifier) NotifyDebit(ctx context.Context, account *domain.Account, txn *domain.Transaction) {
	n.log.InfoContext(ctx, "account debited",
		"account_id", account.ID,
		"transaction_id", txn.ID,
		"amount_cents", txn.AmountCents,
	)
}

// NotifyCredit は送金先口座への入金通知を出す。
func (n *LogNotifier) NotifyCredit(ctx context.Context, account *domain.Account, txn *domain.Transaction) {
	n.log.InfoContext(ctx, "account credited",
		"account_id", account.ID,
		"transaction_id", txn.ID,
		"amount_cents", txn.AmountCents,
	)
}
