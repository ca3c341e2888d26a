package usecase

import (
	"context"
	"encoding/base64"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/custody"
	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/repository"
)

const testPIN = "1234"

// recordingNotifier は通知呼び出しを記録するテスト用Notifier。
type recordingNotifier struct {
	mu      sync.Mutex
	debits  []string
	credits []string
}

func (n *recordingNotifier) NotifyDebit(ctx context.Context, account *domain.Account, txn *domain.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.debits = append(n.debits, txn.ID)
}

func (n *recordingNotifier) NotifyCredit(ctx context.Context, account *domain.Account, txn *domain.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.credits = append(n.credits, txn.ID)
}

// testEnv はユースケーステスト一式の依存をまとめる。
type testEnv struct {
	db       *gorm.DB
	repos    *repository.Repositories
	store    custody.Store
	cipher   *custody.Cipher
	certs    *CertificateService
	txs      *TransactionService
	rotation *RotationService
	ephemer  *EphemeralService
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return newTestEnvWithDB(t, db)
}

// newFileTestEnv はファイルベースのSQLiteで環境を構築する。
// 並行決済テストで複数goroutineから同じDBを触るために使う。
func newFileTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usecase.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return newTestEnvWithDB(t, db)
}

func newTestEnvWithDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cipher, err := custody.NewCipher("test-master-secret")
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	store, err := custody.NewFileStore(t.TempDir(), cipher, slog.Default())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	repos := repository.New(db)
	certs := NewCertificateService(repos, store, slog.Default())
	notifier := &recordingNotifier{}
	env := &testEnv{
		db:       db,
		repos:    repos,
		store:    store,
		cipher:   cipher,
		certs:    certs,
		txs:      NewTransactionService(repos, certs, cipher, notifier, slog.Default()),
		notifier: notifier,
		ephemer:  NewEphemeralService(repos, slog.Default()),
	}
	env.rotation = NewRotationService(repos, store, cipher, RotationPolicy{
		UserKeyMaxAge: 365 * 24 * time.Hour,
		CAKeyMaxAge:   1095 * 24 * time.Hour,
		GracePeriod:   30 * 24 * time.Hour,
	}, slog.Default())
	return env
}

func (e *testEnv) initCA(t *testing.T) *domain.CertificateAuthority {
	t.Helper()
	ca, err := e.certs.InitializeCA(context.Background(), "Test CA", "Test Org", "JP")
	if err != nil {
		t.Fatalf("InitializeCA failed: %v", err)
	}
	return ca
}

// testAccount は鍵ペア付きのテスト口座を表す。
type testAccount struct {
	account *domain.Account
	privPEM string
}

// createTestAccount はbcryptハッシュ済みPINと預託秘密鍵レコードを持つ口座を作成する。
func (e *testEnv) createTestAccount(t *testing.T, number string, balanceCents int64) testAccount {
	t.Helper()
	ctx := context.Background()

	pubPEM, privPEM, err := cryptoutil.GenerateKeyPair(cryptoutil.KeySizeUser)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	pinHash, err := bcrypt.GenerateFromPassword([]byte(testPIN), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}

	account := &domain.Account{
		OwnerName:       "owner-" + number,
		AccountNumber:   number,
		PublicKey:       pubPEM,
		BalanceCents:    balanceCents,
		Active:          true,
		KeyVersion:      1,
		TransferPINHash: string(pinHash),
	}
	if err := e.repos.Accounts.Create(ctx, account); err != nil {
		t.Fatalf("creating account failed: %v", err)
	}

	blob, err := e.cipher.Encrypt([]byte(privPEM))
	if err != nil {
		t.Fatalf("encrypting private key failed: %v", err)
	}
	record := &domain.PrivateKeyRecord{AccountID: account.ID, EncryptedKey: blob}
	if err := e.repos.PrivateKeys.Create(ctx, record); err != nil {
		t.Fatalf("creating private key record failed: %v", err)
	}
	return testAccount{account: account, privPEM: privPEM}
}

// signCanonical は正規化バイト列へのクライアント署名をBase64で生成する。
func signCanonical(t *testing.T, sender, receiver string, cents int64, privPEM string) string {
	t.Helper()
	canonical, err := cryptoutil.Encode(sender, receiver, cents)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	sig, err := cryptoutil.Sign(canonical, []byte(privPEM))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}
