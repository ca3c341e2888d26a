package domain

import "time"

// EphemeralKey はセッションスコープの短命公開鍵を表す。
// 口座ごとにactiveな鍵は高々1件。
type EphemeralKey struct {
	ID        string
	SessionID string // 256ビット乱数の16進表現
	AccountID string
	PublicKey string // PEM
	ExpiresAt time.Time
	Active    bool
	CreatedAt time.Time
}

// Expired は有効期限切れかどうかを返す。
func (k *EphemeralKey) Expired(now time.Time) bool {
	return k.ExpiresAt.Before(now)
}

// 短命鍵の有効期間の境界値（秒）。
const (
	EphemeralLifetimeMin     = 60
	EphemeralLifetimeMax     = 86400
	EphemeralLifetimeDefault = 3600
)
