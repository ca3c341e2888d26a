package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"transaction-certification-service/config"
	"transaction-certification-service/internal/custody"
	"transaction-certification-service/internal/infra"
	"transaction-certification-service/internal/repository"
	"transaction-certification-service/internal/usecase"
)

// sweepCmd は期限切れの短命鍵の失効と猶予期間を過ぎた廃止鍵の削除を行う。
// APIを経由せずDBへ直接接続する。cronからの定期実行を想定。
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate expired session keys and purge deprecated keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := config.Load()

		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required")
		}
		db, err := infra.NewDB(cfg.DatabaseURL, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		repos := repository.New(db)

		ephemeral := usecase.NewEphemeralService(repos, log)
		swept, err := ephemeral.SweepExpired(ctx)
		if err != nil {
			return fmt.Errorf("sweeping expired session keys: %w", err)
		}

		cipher, err := custody.NewCipher(cfg.CustodyMasterSecret)
		if err != nil {
			return fmt.Errorf("initializing key cipher: %w", err)
		}
		store, err := infra.NewCustodyStore(ctx, cfg, cipher, log)
		if err != nil {
			return fmt.Errorf("initializing custody store: %w", err)
		}
		rotation := usecase.NewRotationService(repos, store, cipher, usecase.RotationPolicy{
			UserKeyMaxAge: cfg.UserKeyMaxAge,
			CAKeyMaxAge:   cfg.CAKeyMaxAge,
			GracePeriod:   cfg.GracePeriod,
		}, log)
		purged, err := rotation.PurgeDeprecatedKeys(ctx)
		if err != nil {
			return fmt.Errorf("purging deprecated keys: %w", err)
		}

		fmt.Printf("Deactivated %d expired session key(s), purged %d deprecated key record(s).\n", swept, purged)
		return nil
	},
}
