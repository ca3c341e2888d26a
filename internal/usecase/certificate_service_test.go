package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/domain"
)

func TestCertificateService_InitializeCA(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ca, err := env.certs.InitializeCA(ctx, "Root CA", "Example Bank", "JP")
	if err != nil {
		t.Fatalf("InitializeCA failed: %v", err)
	}
	if ca.KeySize != cryptoutil.KeySizeCA {
		t.Errorf("want %d-bit CA key, got %d", cryptoutil.KeySizeCA, ca.KeySize)
	}
	if ca.DistinguishedName() != "CN=Root CA, O=Example Bank, C=JP" {
		t.Errorf("unexpected DN: %s", ca.DistinguishedName())
	}

	held, err := env.store.Exists(ctx, CACustodyKeyID)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !held {
		t.Error("CA private key not stored in custody")
	}

	// 再初期化は拒否される
	if _, err := env.certs.InitializeCA(ctx, "Root CA", "Example Bank", "JP"); !errors.Is(err, domain.ErrCAAlreadyInitialized) {
		t.Errorf("want ErrCAAlreadyInitialized, got %v", err)
	}
}

func TestCertificateService_ActiveCA_NotInitialized(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.certs.ActiveCA(context.Background()); !errors.Is(err, domain.ErrCANotInitialized) {
		t.Errorf("want ErrCANotInitialized, got %v", err)
	}
}

func TestCertificateService_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ca := env.initCA(t)

	sender := env.createTestAccount(t, "PC001", 10000)
	receiver := env.createTestAccount(t, "PC002", 0)
	txn := createPendingTx(t, env, sender, receiver, "10.00")

	cert, err := env.certs.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetByTransactionID failed: %v", err)
	}
	if cert.IssuerDN != ca.DistinguishedName() {
		t.Errorf("want issuer %q, got %q", ca.DistinguishedName(), cert.IssuerDN)
	}

	// エンベロープのペイロードは取引内容を写している
	payloadBytes, _, caPubKey, err := cryptoutil.DecodeEnvelope(cert.Envelope)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	var payload certificatePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.TransactionID != txn.ID || payload.TransactionHash != txn.TransactionHash {
		t.Errorf("payload does not reflect transaction: %+v", payload)
	}
	if payload.AmountCents != 1000 {
		t.Errorf("want 1000 cents in payload, got %d", payload.AmountCents)
	}
	if payload.TransactionAt.IsZero() || !payload.TransactionAt.Equal(txn.CreatedAt) {
		t.Errorf("want transaction time %v in payload, got %v", txn.CreatedAt, payload.TransactionAt)
	}
	if string(caPubKey) != ca.PublicKey {
		t.Error("embedded CA public key differs from active CA")
	}

	// Subject DNは取引IDと両当事者の鍵長・フィンガープリント先頭を含む
	wantSubjectPrefix := fmt.Sprintf("CN=TX:%s, keys=%d/%d, fp=", txn.ID, cryptoutil.KeySizeUser, cryptoutil.KeySizeUser)
	if !strings.HasPrefix(cert.SubjectDN, wantSubjectPrefix) {
		t.Errorf("want subject prefix %q, got %q", wantSubjectPrefix, cert.SubjectDN)
	}

	ok, err := env.certs.Verify(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("freshly issued certificate must verify")
	}
}

func TestCertificateService_Verify_TamperedPayload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ca := env.initCA(t)

	sender := env.createTestAccount(t, "PC001", 10000)
	receiver := env.createTestAccount(t, "PC002", 0)
	txn := createPendingTx(t, env, sender, receiver, "10.00")

	cert, err := env.certs.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetByTransactionID failed: %v", err)
	}
	payloadBytes, caSig, _, err := cryptoutil.DecodeEnvelope(cert.Envelope)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}

	// 金額を書き換えたペイロードで署名はそのまま
	var payload certificatePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	payload.AmountCents = 999999999
	tampered, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling tampered payload: %v", err)
	}
	envelope := cryptoutil.EncodeEnvelope(tampered, caSig, []byte(ca.PublicKey))
	env.db.Exec("UPDATE certificates SET envelope = ? WHERE transaction_id = ?", envelope, txn.ID)

	ok, err := env.certs.Verify(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("tampered certificate must not verify")
	}
}

func TestCertificateService_Verify_Expired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initCA(t)

	sender := env.createTestAccount(t, "PC001", 10000)
	receiver := env.createTestAccount(t, "PC002", 0)
	txn := createPendingTx(t, env, sender, receiver, "10.00")

	past := time.Now().UTC().Add(-time.Hour)
	env.db.Exec("UPDATE certificates SET expires_at = ? WHERE transaction_id = ?", past, txn.ID)

	ok, err := env.certs.Verify(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("expired certificate must not verify")
	}
}

func TestCertificateService_Verify_UnknownTransaction(t *testing.T) {
	env := newTestEnv(t)
	env.initCA(t)
	if _, err := env.certs.Verify(context.Background(), "no-such-id"); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Errorf("want ErrCertificateNotFound, got %v", err)
	}
}
