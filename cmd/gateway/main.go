// ドキュメントサイト向けゲートウェイのエントリポイント。
// 訪問者のセッショントークンを検証し、アクセス階層に応じて上流APIへ転送する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nao1215/docgate/internal/gateway"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .envが無い場合は環境変数のみを使う
	_ = godotenv.Load()

	cfg, err := gateway.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := gateway.NewLogger(cfg.Production())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("ゲートウェイの初期化に失敗", zap.Error(err))
		return err
	}
	defer func() { _ = server.Close() }()

	return server.Run(ctx)
}
