// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"transaction-certification-service/config"
	"transaction-certification-service/internal/custody"
	"transaction-certification-service/internal/handler"
	"transaction-certification-service/internal/infra"
	"transaction-certification-service/internal/repository"
	"transaction-certification-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	log := infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// 鍵素材暗号化と保管バックエンド初期化
	cipher, err := custody.NewCipher(cfg.CustodyMasterSecret)
	if err != nil {
		slog.Error("failed to init key cipher", "error", err)
		os.Exit(1)
	}
	store, err := infra.NewCustodyStore(ctx, cfg, cipher, log)
	if err != nil {
		slog.Error("failed to init custody store", "error", err)
		os.Exit(1)
	}

	// DI
	repos := repository.New(db)
	certService := usecase.NewCertificateService(repos, store, log)
	txService := usecase.NewTransactionService(repos, certService, cipher, infra.NewLogNotifier(log), log)
	rotationService := usecase.NewRotationService(repos, store, cipher, usecase.RotationPolicy{
		UserKeyMaxAge: cfg.UserKeyMaxAge,
		CAKeyMaxAge:   cfg.CAKeyMaxAge,
		GracePeriod:   cfg.GracePeriod,
	}, log)
	ephemeralService := usecase.NewEphemeralService(repos, log)

	router := handler.NewRouter(
		handler.NewTransactionHandler(txService),
		handler.NewCertificateHandler(certService),
		handler.NewKeyHandler(rotationService, ephemeralService),
	)

	var h http.Handler = router
	if cfg.OtelEnabled {
		h = otelhttp.NewHandler(router, "http.server")
	}

	// サーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: h,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "custody_backend", cfg.CustodyBackend)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
