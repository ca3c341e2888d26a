package infra

import (
	"context"
	"fmt"
	"log/slog"

	"transaction-certification-service/config"
	"transaction-certification-service/internal/custody"
)

// NewCustodyStore は設定に応じた鍵保管バックエンドを生成する。
// file以外のバックエンドは署名専用で、鍵素材の払い出しをサポートしない。
func NewCustodyStore(ctx context.Context, cfg *config.Config, cipher *custody.Cipher, log *slog.Logger) (custody.Store, error) {
	switch cfg.CustodyBackend {
	case "file":
		return custody.NewFileStore(cfg.CustodyDir, cipher, log)
	case "gcpkms":
		if cfg.KMSKeyRing == "" {
			return nil, fmt.Errorf("KMS_KEY_RING is required for the gcpkms backend")
		}
		return custody.NewGCPKMSStore(ctx, cfg.KMSKeyRing, log)
	case "awskms":
		if cfg.AWSRegion == "" {
			return nil, fmt.Errorf("AWS_REGION is required for the awskms backend")
		}
		return custody.NewAWSKMSStore(cfg.AWSRegion, cfg.AWSKeyAliasPrefix, log)
	default:
		return nil, fmt.Errorf("unknown custody backend %q", cfg.CustodyBackend)
	}
}
