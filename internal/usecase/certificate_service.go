package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/custody"
	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/repository"
)

// CACustodyKeyID は初期確立時のCA秘密鍵のKeyCustody上のID。
// ローテーション後のCAは世代ごとに採番されたIDを持つため、署名時は
// 常にactiveなCA行のCustodyKeyIDを参照する。
const CACustodyKeyID = "ca-current"

const (
	certificateValidity = 365 * 24 * time.Hour
	signatureAlgorithm  = "SHA256withRSA"
	payloadVersion      = 1
)

// certificatePayload はCAが署名する証明書ペイロード。
// json.Marshalのフィールド順序が署名対象バイト列を決めるため、
// フィールドの追加・並べ替えは検証互換性を壊す。
type certificatePayload struct {
	Version             int       `json:"version"`
	SerialNumber        string    `json:"serial_number"`
	Issuer              string    `json:"issuer"`
	Subject             string    `json:"subject"`
	NotBefore           time.Time `json:"not_before"`
	NotAfter            time.Time `json:"not_after"`
	Algorithm           string    `json:"algorithm"`
	TransactionID       string    `json:"transaction_id"`
	TransactionHash     string    `json:"transaction_hash"`
	AmountCents         int64     `json:"amount_cents"`
	TransactionAt       time.Time `json:"transaction_at"`
	SenderPublicKey     string    `json:"sender_public_key"`
	SenderFingerprint   string    `json:"sender_fingerprint"`
	ReceiverPublicKey   string    `json:"receiver_public_key"`
	ReceiverFingerprint string    `json:"receiver_fingerprint"`
	CAFingerprint       string    `json:"ca_fingerprint"`
}

// CertificateService は認証局の確立と取引証明書の発行・検証を提供する。
type CertificateService struct {
	repos *repository.Repositories
	store custody.Store
	log   *slog.Logger
}

// NewCertificateService は新しいCertificateServiceを生成する。
func NewCertificateService(repos *repository.Repositories, store custody.Store, log *slog.Logger) *CertificateService {
	return &CertificateService{
		repos: repos,
		store: store,
		log:   log,
	}
}

// InitializeCA は認証局を一度だけ確立する。
// CA鍵（4096ビット）を生成してKeyCustodyに保管し、メタデータ行をactiveとして保存する。
func (s *CertificateService) InitializeCA(ctx context.Context, name, organization, country string) (*domain.CertificateAuthority, error) {
	existing, err := s.repos.CAs.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking existing CA: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrCAAlreadyInitialized
	}
	held, err := s.store.Exists(ctx, CACustodyKeyID)
	if err != nil {
		return nil, fmt.Errorf("checking custody key: %w", err)
	}
	if held {
		return nil, domain.ErrCAAlreadyInitialized
	}

	pubPEM, privPEM, err := cryptoutil.GenerateKeyPair(cryptoutil.KeySizeCA)
	if err != nil {
		return nil, fmt.Errorf("generating CA key pair: %w", err)
	}

	if err := s.store.Store(ctx, CACustodyKeyID, []byte(privPEM)); err != nil {
		return nil, fmt.Errorf("storing CA key: %w", err)
	}

	ca := &domain.CertificateAuthority{
		Name:         name,
		Organization: organization,
		Country:      country,
		PublicKey:    pubPEM,
		Fingerprint:  cryptoutil.Fingerprint(pubPEM),
		KeySize:      cryptoutil.KeySizeCA,
		CustodyKeyID: CACustodyKeyID,
	}
	err = s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		if err := tx.CAs.DeactivateAll(ctx); err != nil {
			return err
		}
		return tx.CAs.Create(ctx, ca)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting CA: %w", err)
	}

	s.log.InfoContext(ctx, "certificate authority initialized",
		"ca_name", name,
		"fingerprint", ca.Fingerprint,
		"key_size", ca.KeySize,
	)
	return ca, nil
}

// ActiveCA は現在activeなCAを返す。未初期化の場合はErrCANotInitialized。
func (s *CertificateService) ActiveCA(ctx context.Context) (*domain.CertificateAuthority, error) {
	ca, err := s.repos.CAs.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if ca == nil {
		return nil, domain.ErrCANotInitialized
	}
	return ca, nil
}

// Issue は取引に対する証明書を発行する。
// 取引作成と同一トランザクションで呼ばれるため、呼び出し側のtxを受け取る。
// CA秘密鍵は取り出さず、SignWithoutExposureでペイロードに署名する。
func (s *CertificateService) Issue(ctx context.Context, tx *repository.Repositories, txn *domain.Transaction, sender, receiver *domain.Account) (*domain.Certificate, error) {
	ca, err := tx.CAs.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding active CA: %w", err)
	}
	if ca == nil {
		return nil, domain.ErrCANotInitialized
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	senderFP := cryptoutil.Fingerprint(sender.PublicKey)
	receiverFP := cryptoutil.Fingerprint(receiver.PublicKey)
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(certificateValidity)

	senderBits, err := cryptoutil.KeyBits(sender.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("reading sender key size: %w", err)
	}
	receiverBits, err := cryptoutil.KeyBits(receiver.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("reading receiver key size: %w", err)
	}

	subject := fmt.Sprintf("CN=TX:%s, keys=%d/%d, fp=%s/%s",
		txn.ID, senderBits, receiverBits, senderFP[:16], receiverFP[:16])
	payload := certificatePayload{
		Version:             payloadVersion,
		SerialNumber:        serial,
		Issuer:              ca.DistinguishedName(),
		Subject:             subject,
		NotBefore:           issuedAt,
		NotAfter:            expiresAt,
		Algorithm:           signatureAlgorithm,
		TransactionID:       txn.ID,
		TransactionHash:     txn.TransactionHash,
		AmountCents:         txn.AmountCents,
		TransactionAt:       txn.CreatedAt,
		SenderPublicKey:     sender.PublicKey,
		SenderFingerprint:   senderFP,
		ReceiverPublicKey:   receiver.PublicKey,
		ReceiverFingerprint: receiverFP,
		CAFingerprint:       ca.Fingerprint,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling certificate payload: %w", err)
	}

	caSig, err := s.store.SignWithoutExposure(ctx, ca.CustodyKeyID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("signing certificate payload: %w", err)
	}

	cert := &domain.Certificate{
		TransactionID: txn.ID,
		SerialNumber:  serial,
		IssuerDN:      ca.DistinguishedName(),
		SubjectDN:     subject,
		CASignature:   base64.StdEncoding.EncodeToString(caSig),
		Envelope:      cryptoutil.EncodeEnvelope(payloadBytes, caSig, []byte(ca.PublicKey)),
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
	}
	if err := tx.Certificates.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("persisting certificate: %w", err)
	}

	s.log.InfoContext(ctx, "certificate issued",
		"transaction_id", txn.ID,
		"serial_number", serial,
	)
	return cert, nil
}

// GetByTransactionID は取引に対応する証明書を取得する。
func (s *CertificateService) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Certificate, error) {
	cert, err := s.repos.Certificates.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, domain.ErrCertificateNotFound
	}
	return cert, nil
}

// Verify は証明書の正当性を検査し、結果をboolで返す。
// 検査項目はCA署名（現行activeなCAの公開鍵で検証）、有効期限、Issuer DNの一致。
// 不合格は(false, nil)であり、DB障害など検査不能の場合のみerrを返す。
func (s *CertificateService) Verify(ctx context.Context, transactionID string) (bool, error) {
	cert, err := s.repos.Certificates.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if cert == nil {
		return false, domain.ErrCertificateNotFound
	}

	ca, err := s.repos.CAs.FindActive(ctx)
	if err != nil {
		return false, err
	}
	if ca == nil {
		return false, domain.ErrCANotInitialized
	}

	payload, caSig, _, err := cryptoutil.DecodeEnvelope(cert.Envelope)
	if err != nil {
		s.log.WarnContext(ctx, "certificate envelope malformed",
			"transaction_id", transactionID,
			"error", err,
		)
		return false, nil
	}

	ok, err := cryptoutil.Verify(payload, caSig, []byte(ca.PublicKey))
	if err != nil {
		return false, fmt.Errorf("verifying CA signature: %w", err)
	}
	if !ok {
		return false, nil
	}

	if cert.Expired(time.Now().UTC()) {
		return false, nil
	}
	if cert.IssuerDN != ca.DistinguishedName() {
		return false, nil
	}
	return true, nil
}

// newSerialNumber は128ビットの乱数シリアル番号を16進で生成する。
func newSerialNumber() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generating serial number: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
