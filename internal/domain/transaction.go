package domain

import "time"

// TransactionStatus は取引のステータスを表す。
// pendingから終端状態（approved / rejected / failed）へ一度だけ遷移する。
type TransactionStatus string

const (
	// TransactionStatusPending は作成済みで未決済の取引を表す。
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusApproved は決済が完了した取引を表す。
	TransactionStatusApproved TransactionStatus = "approved"
	// TransactionStatusRejected は検証不合格で拒否された取引を表す。
	TransactionStatusRejected TransactionStatus = "rejected"
	// TransactionStatusFailed は予期しない障害で失敗した取引を表す。
	TransactionStatusFailed TransactionStatus = "failed"
)

// Terminal は終端状態かどうかを返す。
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusApproved || s == TransactionStatusRejected || s == TransactionStatusFailed
}

// SignatureScheme は署名対象データの形を表す。
type SignatureScheme string

const (
	// SignatureSchemeCanonical は正規化取引バイト列への署名。新規取引は常にこちら。
	SignatureSchemeCanonical SignatureScheme = "canonical"
	// SignatureSchemeLegacyHash はハッシュ16進文字列のバイト列への署名（過去レコード互換）。
	SignatureSchemeLegacyHash SignatureScheme = "legacy-hash"
)

// Transaction は送金取引エンティティを表す。
// 一度終端状態に遷移した後は変更されない。
type Transaction struct {
	ID                string
	SenderAccountID   string
	ReceiverAccountID string
	AmountCents       int64
	TransactionHash   string // 正規化バイト列のSHA-256（16進）
	DigitalSignature  string // Base64
	SignatureScheme   SignatureScheme
	Status            TransactionStatus
	RejectionReason   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// 決済の拒否理由。終端状態rejectedのRejectionReasonに設定される。
const (
	RejectionHashMismatch      = "hash mismatch"
	RejectionSignatureInvalid  = "signature invalid"
	RejectionInsufficientFunds = "insufficient funds"
)

// OutcomeKind は決済結果の種別を表す。
type OutcomeKind string

const (
	// OutcomeOK は決済成功を表す。
	OutcomeOK OutcomeKind = "ok"
	// OutcomeRejected は検証不合格による終端拒否を表す。
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeFailed は予期しない障害による終端失敗を表す。
	OutcomeFailed OutcomeKind = "failed"
)

// SettlementOutcome は決済のタグ付き結果を表す。
// 業務上の否定結果は例外ではなくこの値で返す。
type SettlementOutcome struct {
	Kind        OutcomeKind
	Reason      string
	Transaction *Transaction
}

// Ok は成功結果を生成する。
func Ok(tx *Transaction) SettlementOutcome {
	return SettlementOutcome{Kind: OutcomeOK, Transaction: tx}
}

// Rejected は拒否結果を生成する。
func Rejected(tx *Transaction, reason string) SettlementOutcome {
	return SettlementOutcome{Kind: OutcomeRejected, Reason: reason, Transaction: tx}
}

// Failed は失敗結果を生成する。
func Failed(tx *Transaction, reason string) SettlementOutcome {
	return SettlementOutcome{Kind: OutcomeFailed, Reason: reason, Transaction: tx}
}
