package gateway

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger は環境に応じたzapロガーを生成する。
// 本番環境ではJSON形式、それ以外は開発向けのコンソール形式で出力する。
func NewLogger(production bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if production {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}
	return logger.Named("gateway"), nil
}
