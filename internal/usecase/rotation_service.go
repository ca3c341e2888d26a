package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/custody"
	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/repository"
)

// RotationPolicy は鍵の有効期間と廃止鍵の保持猶予を定める。
type RotationPolicy struct {
	UserKeyMaxAge time.Duration
	CAKeyMaxAge   time.Duration
	GracePeriod   time.Duration
}

// RotationService は鍵ローテーションのビジネスロジックを提供する。
// 期限は口座鍵・CA鍵で独立に判定し、force指定で期限前ローテーションを許す。
type RotationService struct {
	repos  *repository.Repositories
	store  custody.Store
	cipher *custody.Cipher
	policy RotationPolicy
	log    *slog.Logger
}

// NewRotationService は新しいRotationServiceを生成する。
func NewRotationService(repos *repository.Repositories, store custody.Store, cipher *custody.Cipher, policy RotationPolicy, log *slog.Logger) *RotationService {
	return &RotationService{
		repos:  repos,
		store:  store,
		cipher: cipher,
		policy: policy,
		log:    log,
	}
}

// RotateUserKey は口座の鍵ペアを再生成する。
// 旧秘密鍵レコードの廃止・新レコードの作成・公開鍵と鍵バージョンの更新を
// ひとつのトランザクションで行う。期限前でforceもない場合はErrRotationNotDue。
func (s *RotationService) RotateUserKey(ctx context.Context, accountID string, force bool) (*domain.Account, error) {
	account, err := s.repos.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	last := account.CreatedAt
	if account.KeyRotatedAt != nil {
		last = *account.KeyRotatedAt
	}
	if !force && time.Since(last) < s.policy.UserKeyMaxAge {
		return nil, domain.ErrRotationNotDue
	}

	pubPEM, privPEM, err := cryptoutil.GenerateKeyPair(cryptoutil.KeySizeUser)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	blob, err := s.cipher.Encrypt([]byte(privPEM))
	if err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}

	rotatedAt := time.Now().UTC()
	newVersion := account.KeyVersion + 1
	err = s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		current, err := tx.PrivateKeys.FindCurrentByAccountID(ctx, accountID)
		if err != nil {
			return err
		}
		if current != nil {
			if err := tx.PrivateKeys.Deprecate(ctx, current.ID, rotatedAt, "rotated"); err != nil {
				return err
			}
		}
		record := &domain.PrivateKeyRecord{
			AccountID:    accountID,
			EncryptedKey: blob,
		}
		if err := tx.PrivateKeys.Create(ctx, record); err != nil {
			return err
		}
		return tx.Accounts.UpdatePublicKey(ctx, accountID, pubPEM, newVersion, rotatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("rotating user key: %w", err)
	}

	account.PublicKey = pubPEM
	account.KeyVersion = newVersion
	account.KeyRotatedAt = &rotatedAt

	s.log.InfoContext(ctx, "user key rotated",
		"account_id", accountID,
		"key_version", newVersion,
		"forced", force,
	)
	return account, nil
}

// RotateCAKey はCA鍵を再生成してメタデータ行を置き換える。
// 新しい鍵素材は世代ごとに採番したKeyCustody IDの下に保管し、旧IDを使い回さない。
// 旧鍵素材は取り出せるバックエンドでは廃止IDへ退避し、猶予期間中も参照可能にする。
// サインオンリーのバックエンドでは素材の移動も持ち込みもできないため失敗する。
func (s *RotationService) RotateCAKey(ctx context.Context, force bool) (*domain.CertificateAuthority, error) {
	ca, err := s.repos.CAs.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding active CA: %w", err)
	}
	if ca == nil {
		return nil, domain.ErrCANotInitialized
	}
	if !force && time.Since(ca.EstablishedAt) < s.policy.CAKeyMaxAge {
		return nil, domain.ErrRotationNotDue
	}

	pubPEM, privPEM, err := cryptoutil.GenerateKeyPair(cryptoutil.KeySizeCA)
	if err != nil {
		return nil, fmt.Errorf("generating CA key pair: %w", err)
	}

	if err := s.archiveCurrentCAKey(ctx, ca.CustodyKeyID); err != nil {
		return nil, err
	}
	newKeyID := "ca-" + time.Now().UTC().Format("20060102T150405")
	if err := s.store.Store(ctx, newKeyID, []byte(privPEM)); err != nil {
		if errors.Is(err, custody.ErrStoreUnsupported) {
			return nil, fmt.Errorf("backend manages CA keys externally: %w", err)
		}
		return nil, fmt.Errorf("storing CA key: %w", err)
	}

	next := &domain.CertificateAuthority{
		Name:         ca.Name,
		Organization: ca.Organization,
		Country:      ca.Country,
		PublicKey:    pubPEM,
		Fingerprint:  cryptoutil.Fingerprint(pubPEM),
		KeySize:      cryptoutil.KeySizeCA,
		CustodyKeyID: newKeyID,
	}
	err = s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		if err := tx.CAs.DeactivateAll(ctx); err != nil {
			return err
		}
		return tx.CAs.Create(ctx, next)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting rotated CA: %w", err)
	}

	s.log.InfoContext(ctx, "CA key rotated",
		"fingerprint", next.Fingerprint,
		"custody_key_id", newKeyID,
		"forced", force,
	)
	return next, nil
}

// archiveCurrentCAKey は現行CA鍵素材を廃止IDへ退避する。
// 素材を外部に出さないバックエンドでは退避せず、鍵はバックエンド側に残る。
func (s *RotationService) archiveCurrentCAKey(ctx context.Context, keyID string) error {
	material, err := s.store.Retrieve(ctx, keyID)
	if err != nil {
		if errors.Is(err, custody.ErrRetrieveUnsupported) || errors.Is(err, custody.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("retrieving CA key for archive: %w", err)
	}
	archiveID := "ca-deprecated-" + time.Now().UTC().Format("20060102T150405")
	if err := s.store.Store(ctx, archiveID, material); err != nil {
		return fmt.Errorf("archiving CA key: %w", err)
	}
	s.log.InfoContext(ctx, "archived previous CA key",
		"archive_key_id", archiveID,
	)
	return nil
}

// PurgeDeprecatedKeys は猶予期間を過ぎた廃止済み秘密鍵レコードを削除し、件数を返す。
func (s *RotationService) PurgeDeprecatedKeys(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.policy.GracePeriod)
	purged, err := s.repos.PrivateKeys.PurgeDeprecatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging deprecated keys: %w", err)
	}
	if purged > 0 {
		s.log.InfoContext(ctx, "purged deprecated private keys",
			"count", purged,
		)
	}
	return purged, nil
}
