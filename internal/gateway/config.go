package gateway

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nao1215/docgate/pkg/keyset"
)

const (
	// envProduction はAPP_ENVの本番環境を表す値。
	envProduction = "production"
	// defaultPort は開発環境のデフォルトポート。
	defaultPort = "3001"
	// defaultProductionPort は本番環境のデフォルトポート。
	defaultProductionPort = "3000"
)

// Config はゲートウェイの設定。全て環境変数から読み込む。
type Config struct {
	// Environment はAPP_ENVの値。"production"の場合は本番向けの動作になる。
	Environment string
	// Port はリッスンポート。
	Port string `validate:"required,numeric"`
	// FrontendURL はドキュメントサイトのオリジン。CORSの許可オリジンになる。
	FrontendURL string `validate:"required,url"`
	// ClerkJWKSURL は署名鍵を公開するJWKSのURL。
	ClerkJWKSURL string `validate:"required,url"`
	// ClerkSecretKey はユーザーレコードAPIのサービスシークレット。
	ClerkSecretKey string `validate:"required"`
	// ClerkAPIURL はユーザーレコードAPIのベースURL。
	ClerkAPIURL string `validate:"required,url"`
	// RoutesFile はルート定義のYAMLファイル。空の場合はデフォルトのルートを使う。
	RoutesFile string
	// IDPTimeout はJWKSとユーザーレコードAPIの呼び出しタイムアウト。
	IDPTimeout time.Duration `validate:"gt=0"`
	// UpstreamTimeout は上流APIのレスポンスヘッダー待ちタイムアウト。
	UpstreamTimeout time.Duration `validate:"gt=0"`
	// JWKSMinRefresh は未知のkidによるJWKS再取得の最小間隔。
	JWKSMinRefresh time.Duration `validate:"gte=0"`
	// AuditDBPath は監査ログのSQLiteファイル。空の場合は監査ログを記録しない。
	AuditDBPath string
}

// Production は本番環境であればtrueを返す。
func (c *Config) Production() bool {
	return c.Environment == envProduction
}

// Addr はhttp.Serverに渡すリッスンアドレスを返す。
func (c *Config) Addr() string {
	return ":" + c.Port
}

// LoadConfig は環境変数から設定を読み込んで検証する。
func LoadConfig() (*Config, error) {
	env := strings.ToLower(getEnvOr("APP_ENV", "development"))
	port := defaultPort
	if env == envProduction {
		port = defaultProductionPort
	}

	cfg := &Config{
		Environment:    env,
		Port:           getEnvOr("PORT", port),
		FrontendURL:    strings.TrimSuffix(getEnvOr("FRONTEND_URL", "http://localhost:3000"), "/"),
		ClerkJWKSURL:   os.Getenv("CLERK_JWKS_URI"),
		ClerkSecretKey: os.Getenv("CLERK_SECRET_KEY"),
		ClerkAPIURL:    getEnvOr("CLERK_API_URL", "https://api.clerk.com"),
		RoutesFile:     os.Getenv("ROUTES_FILE"),
		AuditDBPath:    os.Getenv("AUDIT_DB_PATH"),
	}

	var err error
	if cfg.IDPTimeout, err = getDurationOr("IDP_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = getDurationOr("UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.JWKSMinRefresh, err = getDurationOr("JWKS_MIN_REFRESH", keyset.DefaultMinRefreshInterval); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は設定値の検証に使う共有インスタンス。
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate は設定値を検証する。
// 不正なフィールドは全てエラーメッセージに含める。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("設定値が不正です: %w", describeValidation(err))
	}
	return nil
}

// describeValidation はvalidatorのエラーをフィールドごとの説明に変換する。
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Namespace()+" は必須です")
		case "url":
			msgs = append(msgs, fe.Namespace()+" はURLである必要があります")
		default:
			msgs = append(msgs, fmt.Sprintf("%s は %s=%s を満たす必要があります", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, ", "))
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getDurationOr は環境変数を時間として解釈する。
// "5s" のような形式のほか、整数はミリ秒として扱う。
func getDurationOr(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("環境変数 %s の値 %q を時間として解釈できません", key, v)
}
