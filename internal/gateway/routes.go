package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/httpclient"
	"github.com/nao1215/docgate/pkg/identity"
	"github.com/nao1215/docgate/pkg/middleware"
	"github.com/nao1215/docgate/pkg/secret"
	"gopkg.in/yaml.v3"
)

// reservedPrefixes はゲートウェイ自身が使用するパス。
var reservedPrefixes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// RouteSpec は1つのルート定義。起動後は変更しない。
type RouteSpec struct {
	// Prefix はルートのパスプレフィックス（例: "/api/httpbin"）。
	Prefix string `yaml:"prefix" validate:"required,startswith=/"`
	// Upstream は転送先のオリジン（例: "https://httpbin.org"）。
	Upstream string `yaml:"upstream" validate:"required,http_url"`
	// Role はルートが要求するアクセス階層。
	Role identity.Role `yaml:"role" validate:"required,oneof=basic paid"`
	// Description はステータス文書に表示する説明。
	Description string `yaml:"description"`
	// Secret は上流APIに付与する組織シークレットの定義。
	Secret *SecretSpec `yaml:"secret,omitempty"`
}

// SecretSpec は上流リクエストに組織シークレットを付与する方法。
type SecretSpec struct {
	// Provider はシークレットのプロバイダ名。環境変数 <DOMAIN>_<PROVIDER>_KEY に対応する。
	Provider string `yaml:"provider" validate:"required,alphanum"`
	// Header はシークレットを設定するヘッダー名。
	Header string `yaml:"header" validate:"required"`
	// Format はヘッダー値の書式（例: "Client-ID %s"）。空の場合は値をそのまま使う。
	Format string `yaml:"format"`
}

// routesFile はROUTES_FILEのトップレベル構造。
type routesFile struct {
	Routes []RouteSpec `yaml:"routes" validate:"required,min=1,dive"`
}

// DefaultRoutes は既定のルート表を返す。
func DefaultRoutes() []RouteSpec {
	return []RouteSpec{
		{
			Prefix:      "/api/zippopotam",
			Upstream:    "http://api.zippopotam.us",
			Role:        identity.RoleBasic,
			Description: "Zip code lookup service",
		},
		{
			Prefix:      "/api/httpbin",
			Upstream:    "https://httpbin.org",
			Role:        identity.RolePaid,
			Description: "HTTP testing service",
		},
		{
			Prefix:      "/api/unsplash",
			Upstream:    "https://api.unsplash.com",
			Role:        identity.RolePaid,
			Description: "Unsplash photo API",
			Secret: &SecretSpec{
				Provider: "unsplash",
				Header:   "Authorization",
				Format:   "Client-ID %s",
			},
		},
	}
}

// LoadRoutes はYAMLファイルからルート表を読み込む。
// 未知のキーはエラーとする。
func LoadRoutes(path string) ([]RouteSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルート定義ファイルの読み込みに失敗: %w", err)
	}
	return parseRoutes(data)
}

func parseRoutes(data []byte) ([]RouteSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f routesFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("ルート定義のパースに失敗: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("ルート定義が不正です: %w", describeValidation(err))
	}
	return f.Routes, nil
}

// Providers はルート表が参照するシークレットのプロバイダ名を返す。
func Providers(specs []RouteSpec) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range specs {
		if s.Secret == nil {
			continue
		}
		p := strings.ToLower(s.Secret.Provider)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HeaderInjector は上流へのリクエストに利用者ごとのヘッダーを付与する。
type HeaderInjector func(out *http.Request, id *identity.Identity)

// Route は検証済みのルート。
type Route struct {
	// Spec は元のルート定義。
	Spec RouteSpec
	// target は転送先のURL。
	target *url.URL
	// preProxy は転送前に実行するフック。
	preProxy []gin.HandlerFunc
	// inject はヘッダー付与フック。nilの場合は付与しない。
	inject HeaderInjector
}

// Prefix はルートのパスプレフィックスを返す。
func (r *Route) Prefix() string {
	return r.Spec.Prefix
}

// Registry は起動時に構築される不変のルート表。
type Registry struct {
	// routes はプレフィックスの長い順に並ぶ。
	routes []*Route
}

var (
	// ErrDuplicatePrefix は同じプレフィックスのルートが複数ある場合に返される。
	ErrDuplicatePrefix = errors.New("プレフィックスが重複しています")
	// ErrInvalidRoute はルート定義が不正な場合に返される。
	ErrInvalidRoute = errors.New("ルート定義が不正です")
)

// NewRegistry はルート定義を検証してRegistryを構築する。
// 組織シークレットを使うルートにはRequireSecretとInjectSecretを組み込む。
func NewRegistry(specs []RouteSpec, secrets *secret.Store) (*Registry, error) {
	if secrets == nil {
		secrets = secret.NewStore(nil)
	}

	reg := &Registry{}
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		if err := validate.Struct(&spec); err != nil {
			return nil, fmt.Errorf("%w: routes[%d]: %w", ErrInvalidRoute, i, describeValidation(err))
		}
		if err := checkPrefix(spec.Prefix); err != nil {
			return nil, fmt.Errorf("%w: routes[%d]: %w", ErrInvalidRoute, i, err)
		}
		if _, dup := seen[spec.Prefix]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePrefix, spec.Prefix)
		}
		seen[spec.Prefix] = struct{}{}

		target, err := url.Parse(spec.Upstream)
		if err != nil {
			return nil, fmt.Errorf("%w: routes[%d]: 上流URLが不正です: %w", ErrInvalidRoute, i, err)
		}
		if target.RawQuery != "" || target.Fragment != "" {
			return nil, fmt.Errorf("%w: routes[%d]: 上流URLにクエリやフラグメントは指定できません", ErrInvalidRoute, i)
		}

		route := &Route{Spec: spec, target: target}
		if spec.Secret != nil {
			route.preProxy = append(route.preProxy, RequireSecret(secrets, spec.Secret.Provider))
			route.inject = InjectSecret(secrets, *spec.Secret)
		}
		reg.routes = append(reg.routes, route)
	}

	// ネストしたプレフィックスはルーターで区別できないため拒否する
	for _, a := range reg.routes {
		for _, b := range reg.routes {
			if a != b && strings.HasPrefix(b.Spec.Prefix, a.Spec.Prefix+"/") {
				return nil, fmt.Errorf("%w: %s と %s が重なっています", ErrInvalidRoute, a.Spec.Prefix, b.Spec.Prefix)
			}
		}
	}

	sort.SliceStable(reg.routes, func(i, j int) bool {
		return len(reg.routes[i].Spec.Prefix) > len(reg.routes[j].Spec.Prefix)
	})
	return reg, nil
}

// checkPrefix はルーターに登録できるプレフィックスか検証する。
func checkPrefix(prefix string) error {
	if prefix == "/" || strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("プレフィックス %q は末尾に/を含められません", prefix)
	}
	if strings.ContainsAny(prefix, ":*?#%") || strings.Contains(prefix, "//") {
		return fmt.Errorf("プレフィックス %q に使用できない文字が含まれています", prefix)
	}
	if _, ok := reservedPrefixes[prefix]; ok {
		return fmt.Errorf("プレフィックス %q は予約されています", prefix)
	}
	return nil
}

// Routes は登録済みのルートをプレフィックスの長い順に返す。
func (r *Registry) Routes() []*Route {
	out := make([]*Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// RequireSecret は利用者の組織にシークレットが設定されていないリクエストを
// 上流へ送る前に500で拒否するGinミドルウェアを返す。
func RequireSecret(secrets *secret.Store, provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.GetIdentity(c)
		if !ok {
			middleware.AbortWithError(c, http.StatusUnauthorized, middleware.CodeNoCredential, "認証が必要です")
			return
		}
		if _, err := secrets.Lookup(id.Email, provider); err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeSecretNotProvisioned,
				"所属組織のAPIキーが設定されていません")
			return
		}
		c.Next()
	}
}

// InjectSecret は利用者の組織のシークレットをヘッダーに設定するHeaderInjectorを返す。
// シークレットが無い場合は何も設定しない。
func InjectSecret(secrets *secret.Store, spec SecretSpec) HeaderInjector {
	return func(out *http.Request, id *identity.Identity) {
		if id == nil {
			return
		}
		value, ok := secrets.Resolve(id.Email)[strings.ToLower(spec.Provider)]
		if !ok {
			return
		}
		cred := httpclient.HeaderCredential{Header: spec.Header, Format: spec.Format, Value: value}
		cred.AttachCredential(out)
	}
}
