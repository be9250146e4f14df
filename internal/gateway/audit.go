package gateway

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// auditTimeFormat は文字列比較で時系列順に並ぶ固定長の日時書式。
const auditTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// AuditLog はアクセス判定イベントをSQLiteに追記する監査ログ。
type AuditLog struct {
	db *sql.DB
}

// OpenAudit はSQLiteの監査ログを開き、マイグレーションを適用する。
// pathに":memory:"を指定するとインメモリデータベースを使う。
func OpenAudit(ctx context.Context, path string, logger *zap.Logger) (*AuditLog, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("監査ログデータベースの接続に失敗: %w", err)
	}
	// SQLiteへの書き込みは1接続に直列化する
	db.SetMaxOpenConns(1)

	if err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("監査ログのマイグレーションに失敗: %w", err)
	}
	return &AuditLog{db: db}, nil
}

// Record はイベントを1件追記する。
func (a *AuditLog) Record(ctx context.Context, ev *event.Event) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO access_events (id, request_id, route, event_type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RequestID, ev.Route, string(ev.EventType), string(ev.Data), ev.CreatedAt.UTC().Format(auditTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("監査イベントの記録に失敗: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (a *AuditLog) Close() error {
	return a.db.Close()
}
