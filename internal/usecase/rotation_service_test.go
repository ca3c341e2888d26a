package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/domain"
)

func TestRotationService_RotateUserKey_NotDue(t *testing.T) {
	env := newTestEnv(t)
	account := env.createTestAccount(t, "PC001", 0)

	if _, err := env.rotation.RotateUserKey(context.Background(), account.account.ID, false); !errors.Is(err, domain.ErrRotationNotDue) {
		t.Errorf("want ErrRotationNotDue, got %v", err)
	}
}

func TestRotationService_RotateUserKey_Forced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createTestAccount(t, "PC001", 0)

	rotated, err := env.rotation.RotateUserKey(ctx, acct.account.ID, true)
	if err != nil {
		t.Fatalf("RotateUserKey failed: %v", err)
	}
	if rotated.KeyVersion != 2 {
		t.Errorf("want key version 2, got %d", rotated.KeyVersion)
	}
	if rotated.PublicKey == acct.account.PublicKey {
		t.Error("public key must change on rotation")
	}

	if _, err := env.rotation.RotateUserKey(ctx, acct.account.ID, true); err != nil {
		t.Fatalf("second RotateUserKey failed: %v", err)
	}

	got, _ := env.repos.Accounts.FindByID(ctx, acct.account.ID)
	if got.KeyVersion != 3 {
		t.Errorf("want key version 3, got %d", got.KeyVersion)
	}
	if got.KeyRotatedAt == nil {
		t.Error("key_rotated_at not set")
	}

	// 初期レコード + ローテーション2回 = 3レコード、現行は1件
	records, err := env.repos.PrivateKeys.FindAllByAccountID(ctx, acct.account.ID)
	if err != nil {
		t.Fatalf("FindAllByAccountID failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("want 3 private key records, got %d", len(records))
	}
	currentCount := 0
	for _, record := range records {
		if !record.Deprecated() {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Errorf("want exactly 1 current record, got %d", currentCount)
	}

	// 現行レコードの秘密鍵は公開鍵と対になっている
	current, err := env.repos.PrivateKeys.FindCurrentByAccountID(ctx, acct.account.ID)
	if err != nil {
		t.Fatalf("FindCurrentByAccountID failed: %v", err)
	}
	material, err := env.cipher.Decrypt(current.EncryptedKey)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	sig, err := cryptoutil.Sign([]byte("rotation check"), material)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	ok, err := cryptoutil.Verify([]byte("rotation check"), sig, []byte(got.PublicKey))
	if err != nil {
		t.Fatalf("Verify fault: %v", err)
	}
	if !ok {
		t.Error("rotated key pair does not match")
	}
}

func TestRotationService_RotateUserKey_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.rotation.RotateUserKey(context.Background(), "no-such-id", true); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("want ErrAccountNotFound, got %v", err)
	}
}

func TestRotationService_RotateCAKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	old := env.initCA(t)

	// 旧CAで発行した証明書を用意する
	sender := env.createTestAccount(t, "PC001", 10000)
	receiver := env.createTestAccount(t, "PC002", 0)
	txn := createPendingTx(t, env, sender, receiver, "10.00")

	// 期限前なのでforceなしでは拒否される
	if _, err := env.rotation.RotateCAKey(ctx, false); !errors.Is(err, domain.ErrRotationNotDue) {
		t.Errorf("want ErrRotationNotDue, got %v", err)
	}

	next, err := env.rotation.RotateCAKey(ctx, true)
	if err != nil {
		t.Fatalf("RotateCAKey failed: %v", err)
	}
	if next.Fingerprint == old.Fingerprint {
		t.Error("CA fingerprint must change on rotation")
	}

	active, err := env.certs.ActiveCA(ctx)
	if err != nil {
		t.Fatalf("ActiveCA failed: %v", err)
	}
	if active.Fingerprint != next.Fingerprint {
		t.Errorf("active CA not replaced: %s", active.Fingerprint)
	}

	// 新鍵は世代ごとに採番されたIDの下に保管され、旧IDは使い回さない
	if next.CustodyKeyID == old.CustodyKeyID {
		t.Errorf("rotated CA must not reuse custody key id %q", old.CustodyKeyID)
	}
	held, err := env.store.Exists(ctx, next.CustodyKeyID)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !held {
		t.Errorf("rotated CA key not stored under %q", next.CustodyKeyID)
	}

	// 旧鍵素材は廃止IDへ退避され、猶予期間中も参照できる
	ids, err := env.store.ListKeyIDs(ctx)
	if err != nil {
		t.Fatalf("ListKeyIDs failed: %v", err)
	}
	archived := false
	for _, id := range ids {
		if strings.HasPrefix(id, "ca-deprecated-") {
			archived = true
		}
	}
	if !archived {
		t.Errorf("previous CA key not archived: %v", ids)
	}

	// 旧CAで発行した証明書は現行CAでは検証に通らない
	ok, err := env.certs.Verify(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("certificate issued by previous CA must not verify against rotated CA")
	}

	// ローテーション後のCAで新規発行した証明書は検証に通る
	txn2 := createPendingTx(t, env, sender, receiver, "5.00")
	ok, err = env.certs.Verify(ctx, txn2.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("certificate issued by rotated CA must verify")
	}
}

func TestRotationService_RotateCAKey_NotInitialized(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.rotation.RotateCAKey(context.Background(), true); !errors.Is(err, domain.ErrCANotInitialized) {
		t.Errorf("want ErrCANotInitialized, got %v", err)
	}
}

func TestRotationService_PurgeDeprecatedKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createTestAccount(t, "PC001", 0)

	if _, err := env.rotation.RotateUserKey(ctx, acct.account.ID, true); err != nil {
		t.Fatalf("RotateUserKey failed: %v", err)
	}

	// 猶予期間内は削除されない
	purged, err := env.rotation.PurgeDeprecatedKeys(ctx)
	if err != nil {
		t.Fatalf("PurgeDeprecatedKeys failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("keys within grace period must be kept, purged %d", purged)
	}

	// 廃止日時を猶予期間より前へずらすと削除対象になる
	past := time.Now().UTC().Add(-31 * 24 * time.Hour)
	env.db.Exec("UPDATE private_key_records SET deprecated_at = ? WHERE deprecated_at IS NOT NULL", past)

	purged, err = env.rotation.PurgeDeprecatedKeys(ctx)
	if err != nil {
		t.Fatalf("PurgeDeprecatedKeys failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("want 1 purged record, got %d", purged)
	}
}
