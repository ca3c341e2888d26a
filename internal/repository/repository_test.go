package repository

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transaction-certification-service/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestAccount(number string, balanceCents int64) *domain.Account {
	return &domain.Account{
		OwnerName:     "owner-" + number,
		AccountNumber: number,
		PublicKey:     "-----BEGIN PUBLIC KEY-----\nAA==\n-----END PUBLIC KEY-----\n",
		BalanceCents:  balanceCents,
		Active:        true,
		KeyVersion:    1,
	}
}

func TestAccountRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewAccountRepository(db)

	account := newTestAccount("PC0000000000000000001", 50000)
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if account.ID == "" {
		t.Fatal("expected generated ID")
	}

	byID, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if byID == nil || byID.AccountNumber != "PC0000000000000000001" {
		t.Errorf("unexpected account: %+v", byID)
	}

	byNumber, err := repo.FindByAccountNumber(ctx, "PC0000000000000000001")
	if err != nil {
		t.Fatalf("FindByAccountNumber failed: %v", err)
	}
	if byNumber == nil || byNumber.ID != account.ID {
		t.Errorf("unexpected account: %+v", byNumber)
	}

	missing, err := repo.FindByAccountNumber(ctx, "PC9999999999999999999")
	if err != nil {
		t.Fatalf("FindByAccountNumber failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown account number")
	}
}

// 時刻カラムがSQLiteでも読み戻せることを確認する。SQLiteドライバは
// 方言既定のdecltypeしかtime.Timeに変換しないため、モデルに方言固有の
// 型を固定するとテストDBでのScanが壊れる。
func TestAccountRepository_TimestampsSurviveRead(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewAccountRepository(db)

	account := newTestAccount("PC0000000000000000001", 1000)
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	found, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.CreatedAt.IsZero() || found.UpdatedAt.IsZero() {
		t.Errorf("timestamps must survive a read: created=%v updated=%v", found.CreatedAt, found.UpdatedAt)
	}
	if found.KeyRotatedAt != nil {
		t.Errorf("key_rotated_at must stay nil before rotation, got %v", found.KeyRotatedAt)
	}

	rotatedAt := time.Now().UTC()
	if err := repo.UpdatePublicKey(ctx, account.ID, account.PublicKey, 2, rotatedAt); err != nil {
		t.Fatalf("UpdatePublicKey failed: %v", err)
	}
	rotated, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if rotated.KeyRotatedAt == nil {
		t.Fatal("key_rotated_at must survive a read after rotation")
	}
	if diff := rotated.KeyRotatedAt.Sub(rotatedAt); diff < -time.Second || diff > time.Second {
		t.Errorf("key_rotated_at drifted: want ~%v, got %v", rotatedAt, rotated.KeyRotatedAt)
	}
}

func TestAccountRepository_UniqueAccountNumber(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewAccountRepository(db)

	if err := repo.Create(ctx, newTestAccount("PC001", 0)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, newTestAccount("PC001", 0)); err == nil {
		t.Error("duplicate account number must violate unique constraint")
	}
}

func TestAccountRepository_UpdateBalanceAndPublicKey(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewAccountRepository(db)

	account := newTestAccount("PC001", 10000)
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.UpdateBalance(ctx, account.ID, 4950); err != nil {
		t.Fatalf("UpdateBalance failed: %v", err)
	}
	rotatedAt := time.Now().UTC()
	if err := repo.UpdatePublicKey(ctx, account.ID, "new-pem", 2, rotatedAt); err != nil {
		t.Fatalf("UpdatePublicKey failed: %v", err)
	}

	got, err := repo.FindByIDForUpdate(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByIDForUpdate failed: %v", err)
	}
	if got.BalanceCents != 4950 {
		t.Errorf("want balance 4950, got %d", got.BalanceCents)
	}
	if got.PublicKey != "new-pem" || got.KeyVersion != 2 {
		t.Errorf("public key not rotated: %+v", got)
	}
	if got.KeyRotatedAt == nil {
		t.Error("key_rotated_at not set")
	}
}

func TestTransactionRepository_StatusTransitionIsGuarded(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewTransactionRepository(db)

	tx := &domain.Transaction{
		SenderAccountID:   "sender-id",
		ReceiverAccountID: "receiver-id",
		AmountCents:       10050,
		TransactionHash:   "deadbeef",
		DigitalSignature:  "c2ln",
		SignatureScheme:   domain.SignatureSchemeCanonical,
	}
	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tx.Status != domain.TransactionStatusPending {
		t.Fatalf("want pending, got %s", tx.Status)
	}

	if err := repo.UpdateStatus(ctx, tx.ID, domain.TransactionStatusRejected, domain.RejectionHashMismatch); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// 終端状態からの再遷移は無効（pending条件付き更新のため影響なし）
	if err := repo.UpdateStatus(ctx, tx.ID, domain.TransactionStatusApproved, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := repo.FindByID(ctx, tx.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Status != domain.TransactionStatusRejected {
		t.Errorf("terminal status must not change, got %s", got.Status)
	}
	if got.RejectionReason != domain.RejectionHashMismatch {
		t.Errorf("want rejection reason %q, got %q", domain.RejectionHashMismatch, got.RejectionReason)
	}
}

func TestPrivateKeyRepository_DeprecateAndPurge(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewPrivateKeyRepository(db)

	record := &domain.PrivateKeyRecord{AccountID: "acct-1", EncryptedKey: []byte("blob-1")}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	current, err := repo.FindCurrentByAccountID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FindCurrentByAccountID failed: %v", err)
	}
	if current == nil || current.ID != record.ID {
		t.Fatalf("unexpected current record: %+v", current)
	}

	// 40日前に廃止されたことにして猶予期間（30日）超過分を削除
	deprecatedAt := time.Now().Add(-40 * 24 * time.Hour)
	if err := repo.Deprecate(ctx, record.ID, deprecatedAt, "rotation"); err != nil {
		t.Fatalf("Deprecate failed: %v", err)
	}

	current, err = repo.FindCurrentByAccountID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FindCurrentByAccountID failed: %v", err)
	}
	if current != nil {
		t.Error("deprecated record must not be current")
	}

	purged, err := repo.PurgeDeprecatedBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeDeprecatedBefore failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("want 1 purged record, got %d", purged)
	}
}

func TestCARepository_SingleActiveRow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewCARepository(db)

	first := &domain.CertificateAuthority{
		Name: "CA v1", Organization: "Org", Country: "JP",
		PublicKey: "pem-1", Fingerprint: "fp-1", KeySize: 4096, CustodyKeyID: "ca-current",
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.DeactivateAll(ctx); err != nil {
		t.Fatalf("DeactivateAll failed: %v", err)
	}
	second := &domain.CertificateAuthority{
		Name: "CA v2", Organization: "Org", Country: "JP",
		PublicKey: "pem-2", Fingerprint: "fp-2", KeySize: 4096, CustodyKeyID: "ca-v2",
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active, err := repo.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if active == nil || active.Name != "CA v2" {
		t.Errorf("want CA v2 active, got %+v", active)
	}

	var count int64
	if err := db.Model(&CertificateAuthorityModel{}).Where("active = ?", true).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("want exactly 1 active CA row, got %d", count)
	}
}

func TestEphemeralKeyRepository_DeactivateAndSweep(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewEphemeralKeyRepository(db)

	expired := &domain.EphemeralKey{
		SessionID: "session-expired",
		AccountID: "acct-1",
		PublicKey: "pem",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &domain.EphemeralKey{
		SessionID: "session-live",
		AccountID: "acct-2",
		PublicKey: "pem",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	for _, k := range []*domain.EphemeralKey{expired, live} {
		if err := repo.Create(ctx, k); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	swept, err := repo.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("want 1 swept key, got %d", swept)
	}

	existed, err := repo.DeactivateBySessionID(ctx, "session-live")
	if err != nil {
		t.Fatalf("DeactivateBySessionID failed: %v", err)
	}
	if !existed {
		t.Error("want existed=true for live session")
	}

	// 冪等: 2回目は影響行なし
	existed, err = repo.DeactivateBySessionID(ctx, "session-live")
	if err != nil {
		t.Fatalf("DeactivateBySessionID failed: %v", err)
	}
	if existed {
		t.Error("second deactivation must report no row")
	}
}

func TestRepositories_AtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repos := New(db)

	err := repos.Atomic(ctx, func(tx *Repositories) error {
		if err := tx.Accounts.Create(ctx, newTestAccount("PC777", 100)); err != nil {
			return err
		}
		return context.Canceled // 任意のエラーでロールバック
	})
	if err == nil {
		t.Fatal("expected error from Atomic")
	}

	account, err := repos.Accounts.FindByAccountNumber(ctx, "PC777")
	if err != nil {
		t.Fatalf("FindByAccountNumber failed: %v", err)
	}
	if account != nil {
		t.Error("rolled-back account must not be visible")
	}
}
