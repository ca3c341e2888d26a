// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/custody"
	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/repository"
)

// settlementFailureReason は障害時に永続化する失敗理由。
// 内部エラーの詳細は監査証跡に残さず、サーバーログにのみ出力する。
const settlementFailureReason = "internal error during settlement"

// Notifier は決済完了の通知先インターフェース。コミット後にベストエフォートで呼ばれる。
type Notifier interface {
	NotifyDebit(ctx context.Context, account *domain.Account, txn *domain.Transaction)
	NotifyCredit(ctx context.Context, account *domain.Account, txn *domain.Transaction)
}

// CreateTransactionInput は取引作成の入力を表す。
// ClientSignatureがあればクライアント署名（正規化バイト列への署名）として検証し、
// なければ預託鍵によるサーバー側署名（レガシー形）にフォールバックする。
type CreateTransactionInput struct {
	SenderAccountID       string
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	TransferPIN           string
	ClientHash            string // 任意。提示された場合は再計算と一致必須
	ClientSignature       string // Base64。空ならサーバー側署名
	Actor                 string
}

// TransactionService は取引の作成と決済のビジネスロジックを提供する。
type TransactionService struct {
	repos    *repository.Repositories
	certs    *CertificateService
	cipher   *custody.Cipher
	notifier Notifier
	log      *slog.Logger
}

// NewTransactionService は新しいTransactionServiceを生成する。
func NewTransactionService(repos *repository.Repositories, certs *CertificateService, cipher *custody.Cipher, notifier Notifier, log *slog.Logger) *TransactionService {
	return &TransactionService{
		repos:    repos,
		certs:    certs,
		cipher:   cipher,
		notifier: notifier,
		log:      log,
	}
}

// Create は取引を検証してpendingで作成し、同一トランザクションで証明書を発行する。
// 残高は楽観的に検査するのみで、減算は決済フェーズまで行わない。
func (s *TransactionService) Create(ctx context.Context, in CreateTransactionInput) (*domain.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	cents, err := cryptoutil.Cents(in.Amount)
	if err != nil {
		return nil, err
	}
	if cents == 0 {
		return nil, domain.ErrInvalidAmount
	}

	sender, err := s.repos.Accounts.FindByID(ctx, in.SenderAccountID)
	if err != nil {
		return nil, fmt.Errorf("finding sender: %w", err)
	}
	if sender == nil {
		return nil, domain.ErrAccountNotFound
	}
	if !sender.Active {
		return nil, domain.ErrAccountInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(sender.TransferPINHash), []byte(in.TransferPIN)); err != nil {
		return nil, domain.ErrInvalidPIN
	}
	if sender.PublicKey == "" {
		return nil, domain.ErrMissingPublicKey
	}

	receiver, err := s.repos.Accounts.FindByAccountNumber(ctx, in.ReceiverAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("finding receiver: %w", err)
	}
	if receiver == nil {
		return nil, domain.ErrAccountNotFound
	}
	if receiver.ID == sender.ID {
		return nil, domain.ErrSelfTransfer
	}
	if !receiver.Active {
		return nil, domain.ErrAccountInactive
	}

	if sender.BalanceCents < cents {
		return nil, domain.ErrInsufficientFunds
	}

	canonical, err := cryptoutil.Encode(sender.AccountNumber, receiver.AccountNumber, cents)
	if err != nil {
		return nil, err
	}
	hash := cryptoutil.Hash(canonical)

	signatureB64, scheme, err := s.resolveSignature(ctx, in, sender, canonical, hash)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		AmountCents:       cents,
		TransactionHash:   hash,
		DigitalSignature:  signatureB64,
		SignatureScheme:   scheme,
	}
	err = s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		if err := tx.Transactions.Create(ctx, txn); err != nil {
			return err
		}
		cert, err := s.certs.Issue(ctx, tx, txn, sender, receiver)
		if err != nil {
			return err
		}
		created := &domain.TransactionLog{
			TransactionID: txn.ID,
			Action:        domain.AuditActionCreated,
			Details:       fmt.Sprintf("amount_cents=%d scheme=%s", cents, scheme),
			Actor:         in.Actor,
		}
		if err := tx.Logs.Append(ctx, created); err != nil {
			return err
		}
		issued := &domain.TransactionLog{
			TransactionID: txn.ID,
			Action:        domain.AuditActionCertIssued,
			Details:       "serial=" + cert.SerialNumber,
			Actor:         in.Actor,
		}
		return tx.Logs.Append(ctx, issued)
	})
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	s.log.InfoContext(ctx, "transaction created",
		"transaction_id", txn.ID,
		"amount_cents", cents,
		"signature_scheme", scheme,
	)
	return txn, nil
}

// resolveSignature は取引に付与する署名を決定する。
// クライアント署名は保存前に検証する。サーバー側署名では預託鍵を復号し、
// ハッシュ16進文字列に署名するレガシー形を使う。鍵素材はログに残さない。
func (s *TransactionService) resolveSignature(ctx context.Context, in CreateTransactionInput, sender *domain.Account, canonical []byte, hash string) (string, domain.SignatureScheme, error) {
	if in.ClientSignature != "" {
		if in.ClientHash != "" && in.ClientHash != hash {
			return "", "", domain.ErrHashMismatch
		}
		sig, err := base64.StdEncoding.DecodeString(in.ClientSignature)
		if err != nil {
			return "", "", fmt.Errorf("%w: undecodable signature", domain.ErrSignatureMismatch)
		}
		ok, err := cryptoutil.Verify(canonical, sig, []byte(sender.PublicKey))
		if err != nil {
			return "", "", fmt.Errorf("verifying client signature: %w", err)
		}
		if !ok {
			return "", "", domain.ErrSignatureMismatch
		}
		return in.ClientSignature, domain.SignatureSchemeCanonical, nil
	}

	record, err := s.repos.PrivateKeys.FindCurrentByAccountID(ctx, sender.ID)
	if err != nil {
		return "", "", fmt.Errorf("finding custodial key: %w", err)
	}
	if record == nil {
		return "", "", domain.ErrNoCustodialKey
	}
	material, err := s.cipher.Decrypt(record.EncryptedKey)
	if err != nil {
		return "", "", fmt.Errorf("decrypting custodial key: %w", err)
	}
	sig, err := cryptoutil.Sign([]byte(hash), material)
	if err != nil {
		return "", "", fmt.Errorf("signing with custodial key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), domain.SignatureSchemeLegacyHash, nil
}

// Settle はpending取引を検証して終端状態へ遷移させる。
// 検証不合格はrejectedとしてコミットし、予期しない障害はロールバック後に
// 別トランザクションでfailedを記録する。冪等であり、終端状態の取引に対する
// 再決済は現在の結果をそのまま返す。
func (s *TransactionService) Settle(ctx context.Context, transactionID, actor string) (domain.SettlementOutcome, error) {
	var (
		outcome        domain.SettlementOutcome
		debitedSender  *domain.Account
		creditedRecver *domain.Account
	)
	err := s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		txn, err := tx.Transactions.FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.ErrTransactionNotFound
		}
		if txn.Status.Terminal() {
			outcome = outcomeFromStatus(txn)
			return nil
		}

		sender, receiver, err := lockAccountPair(ctx, tx, txn.SenderAccountID, txn.ReceiverAccountID)
		if err != nil {
			return err
		}

		canonical, err := cryptoutil.Encode(sender.AccountNumber, receiver.AccountNumber, txn.AmountCents)
		if err != nil {
			return err
		}
		if cryptoutil.Hash(canonical) != txn.TransactionHash {
			return s.reject(ctx, tx, txn, domain.RejectionHashMismatch, actor, &outcome)
		}

		sig, err := base64.StdEncoding.DecodeString(txn.DigitalSignature)
		if err != nil {
			return fmt.Errorf("decoding stored signature: %w", err)
		}
		var ok bool
		switch txn.SignatureScheme {
		case domain.SignatureSchemeLegacyHash:
			ok, err = cryptoutil.VerifyLegacyHash(txn.TransactionHash, sig, []byte(sender.PublicKey))
		default:
			ok, err = cryptoutil.Verify(canonical, sig, []byte(sender.PublicKey))
		}
		if err != nil {
			return fmt.Errorf("verifying signature: %w", err)
		}
		if !ok {
			return s.reject(ctx, tx, txn, domain.RejectionSignatureInvalid, actor, &outcome)
		}

		// 行ロック下での再検査。作成時の楽観的検査は並行決済で追い越される
		if sender.BalanceCents < txn.AmountCents {
			return s.reject(ctx, tx, txn, domain.RejectionInsufficientFunds, actor, &outcome)
		}

		if err := tx.Accounts.UpdateBalance(ctx, sender.ID, sender.BalanceCents-txn.AmountCents); err != nil {
			return err
		}
		if err := tx.Accounts.UpdateBalance(ctx, receiver.ID, receiver.BalanceCents+txn.AmountCents); err != nil {
			return err
		}
		if err := tx.Transactions.UpdateStatus(ctx, txn.ID, domain.TransactionStatusApproved, ""); err != nil {
			return err
		}
		entry := &domain.TransactionLog{
			TransactionID: txn.ID,
			Action:        domain.AuditActionApproved,
			Details:       fmt.Sprintf("amount_cents=%d", txn.AmountCents),
			Actor:         actor,
		}
		if err := tx.Logs.Append(ctx, entry); err != nil {
			return err
		}

		txn.Status = domain.TransactionStatusApproved
		outcome = domain.Ok(txn)

		// 通知用に決済後の残高を保持。通知自体はコミット後に行う
		sender.BalanceCents -= txn.AmountCents
		receiver.BalanceCents += txn.AmountCents
		debitedSender, creditedRecver = sender, receiver
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return domain.SettlementOutcome{}, err
		}
		s.log.ErrorContext(ctx, "settlement failed",
			"transaction_id", transactionID,
			"error", err,
		)
		failed := s.markFailed(ctx, transactionID, actor)
		return domain.Failed(failed, settlementFailureReason), err
	}
	if outcome.Kind == domain.OutcomeOK {
		s.notifySettled(ctx, debitedSender, creditedRecver, outcome.Transaction)
	}
	return outcome, nil
}

// notifySettled は決済成功をコミット後に通知する。
// 通知の失敗は決済結果に影響しないため、Notifier側で握りつぶす契約とする。
func (s *TransactionService) notifySettled(ctx context.Context, sender, receiver *domain.Account, txn *domain.Transaction) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyDebit(ctx, sender, txn)
	s.notifier.NotifyCredit(ctx, receiver, txn)
}

// reject は取引をrejectedへ遷移させ、監査証跡を残す。
// 拒否は正常系の終端であり、トランザクションはコミットされる。
func (s *TransactionService) reject(ctx context.Context, tx *repository.Repositories, txn *domain.Transaction, reason, actor string, outcome *domain.SettlementOutcome) error {
	if err := tx.Transactions.UpdateStatus(ctx, txn.ID, domain.TransactionStatusRejected, reason); err != nil {
		return err
	}
	entry := &domain.TransactionLog{
		TransactionID: txn.ID,
		Action:        domain.AuditActionRejected,
		Details:       reason,
		Actor:         actor,
	}
	if err := tx.Logs.Append(ctx, entry); err != nil {
		return err
	}
	txn.Status = domain.TransactionStatusRejected
	txn.RejectionReason = reason
	*outcome = domain.Rejected(txn, reason)
	s.log.WarnContext(ctx, "transaction rejected",
		"transaction_id", txn.ID,
		"reason", reason,
	)
	return nil
}

// markFailed は決済トランザクションのロールバック後、別トランザクションで
// 取引をfailedへ遷移させる。理由には内部詳細を含めない。
func (s *TransactionService) markFailed(ctx context.Context, transactionID, actor string) *domain.Transaction {
	var txn *domain.Transaction
	err := s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		if err := tx.Transactions.UpdateStatus(ctx, transactionID, domain.TransactionStatusFailed, settlementFailureReason); err != nil {
			return err
		}
		entry := &domain.TransactionLog{
			TransactionID: transactionID,
			Action:        domain.AuditActionFailed,
			Details:       settlementFailureReason,
			Actor:         actor,
		}
		if err := tx.Logs.Append(ctx, entry); err != nil {
			return err
		}
		found, err := tx.Transactions.FindByID(ctx, transactionID)
		if err != nil {
			return err
		}
		txn = found
		return nil
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to mark transaction as failed",
			"transaction_id", transactionID,
			"error", err,
		)
	}
	return txn
}

// Get は取引をIDで取得する。
func (s *TransactionService) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.repos.Transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, nil
}

// AuditTrail は取引の監査証跡を時系列で取得する。
func (s *TransactionService) AuditTrail(ctx context.Context, transactionID string) ([]*domain.TransactionLog, error) {
	txn, err := s.repos.Transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return s.repos.Logs.FindByTransactionID(ctx, transactionID)
}

// lockAccountPair は取引の両口座をID昇順で行ロックする。
// 全ての決済が同じ順序でロックを取ることでデッドロックを避ける。
func lockAccountPair(ctx context.Context, tx *repository.Repositories, senderID, receiverID string) (sender, receiver *domain.Account, err error) {
	first, second := senderID, receiverID
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*domain.Account, 2)
	for _, id := range []string{first, second} {
		account, err := tx.Accounts.FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if account == nil {
			return nil, nil, fmt.Errorf("locking account %s: %w", id, domain.ErrAccountNotFound)
		}
		locked[id] = account
	}
	return locked[senderID], locked[receiverID], nil
}

// outcomeFromStatus は終端状態の取引から決済結果を復元する。
func outcomeFromStatus(txn *domain.Transaction) domain.SettlementOutcome {
	switch txn.Status {
	case domain.TransactionStatusApproved:
		return domain.Ok(txn)
	case domain.TransactionStatusFailed:
		return domain.Failed(txn, txn.RejectionReason)
	default:
		return domain.Rejected(txn, txn.RejectionReason)
	}
}
