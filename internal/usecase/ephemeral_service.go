package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"transaction-certification-service/internal/cryptoutil"
	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/repository"
)

// EphemeralService はセッションスコープの短命鍵を管理する。
// 短命鍵はデバイスごとの一時署名用で、口座の長期鍵とは独立したライフサイクルを持つ。
type EphemeralService struct {
	repos *repository.Repositories
	log   *slog.Logger
}

// NewEphemeralService は新しいEphemeralServiceを生成する。
func NewEphemeralService(repos *repository.Repositories, log *slog.Logger) *EphemeralService {
	return &EphemeralService{
		repos: repos,
		log:   log,
	}
}

// Register は短命公開鍵を登録し、セッションIDを発行する。
// 口座ごとにactiveな鍵は高々1件であり、再登録は既存の鍵を同一トランザクションで
// 無効化する。lifetimeSecondsが0の場合はデフォルト値を使う。
func (s *EphemeralService) Register(ctx context.Context, accountID, publicKeyPEM string, lifetimeSeconds int) (*domain.EphemeralKey, error) {
	if lifetimeSeconds == 0 {
		lifetimeSeconds = domain.EphemeralLifetimeDefault
	}
	if lifetimeSeconds < domain.EphemeralLifetimeMin || lifetimeSeconds > domain.EphemeralLifetimeMax {
		return nil, domain.ErrInvalidLifetime
	}

	account, err := s.repos.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	if !account.Active {
		return nil, domain.ErrAccountInactive
	}

	if _, err := cryptoutil.ParsePublicKey([]byte(publicKeyPEM)); err != nil {
		return nil, err
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}
	key := &domain.EphemeralKey{
		SessionID: sessionID,
		AccountID: accountID,
		PublicKey: publicKeyPEM,
		ExpiresAt: time.Now().UTC().Add(time.Duration(lifetimeSeconds) * time.Second),
	}
	err = s.repos.Atomic(ctx, func(tx *repository.Repositories) error {
		if err := tx.EphemeralKeys.DeactivateByAccountID(ctx, accountID); err != nil {
			return err
		}
		return tx.EphemeralKeys.Create(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("registering ephemeral key: %w", err)
	}

	s.log.InfoContext(ctx, "ephemeral key registered",
		"account_id", accountID,
		"lifetime_seconds", lifetimeSeconds,
	)
	return key, nil
}

// Verify はセッションの短命鍵で署名を検証する。
// 期限切れの鍵はこの時点で無効化する（遅延無効化）。セッションの不在・
// 無効化済み・期限切れを含め、検証不合格は常に(false, nil)。
func (s *EphemeralService) Verify(ctx context.Context, sessionID string, data, signature []byte) (bool, error) {
	key, err := s.repos.EphemeralKeys.FindBySessionID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, nil
	}
	if !key.Active {
		return false, nil
	}
	if key.Expired(time.Now().UTC()) {
		if _, err := s.repos.EphemeralKeys.DeactivateBySessionID(ctx, sessionID); err != nil {
			return false, err
		}
		return false, nil
	}
	ok, err := cryptoutil.Verify(data, signature, []byte(key.PublicKey))
	if err != nil {
		return false, fmt.Errorf("verifying ephemeral signature: %w", err)
	}
	return ok, nil
}

// Deactivate はセッションの短命鍵を無効化する。既に無効な場合も成功する（冪等）。
func (s *EphemeralService) Deactivate(ctx context.Context, sessionID string) error {
	existed, err := s.repos.EphemeralKeys.DeactivateBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !existed {
		key, err := s.repos.EphemeralKeys.FindBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		if key == nil {
			return domain.ErrSessionNotFound
		}
	}
	return nil
}

// SweepExpired は期限切れのactiveな短命鍵を一括で無効化し、件数を返す。
func (s *EphemeralService) SweepExpired(ctx context.Context) (int64, error) {
	swept, err := s.repos.EphemeralKeys.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.log.InfoContext(ctx, "swept expired ephemeral keys",
			"count", swept,
		)
	}
	return swept, nil
}

// newSessionID は256ビットの乱数セッションIDを16進で生成する。
func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
