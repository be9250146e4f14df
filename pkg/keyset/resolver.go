// Package keyset はIDプロバイダが公開するJWKSから署名検証用の公開鍵を解決する。
//
// 鍵はkid単位でキャッシュされ、未知のkidが要求された時点でJWKSを再取得する。
// キャッシュへの書き込みは追記のみで、同じkidに対する同時取得は同じ結果に収束する。
package keyset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeyNotFound はJWKSに指定されたkidの鍵が存在しない場合に返される。
	ErrKeyNotFound = errors.New("指定されたkidの署名鍵が見つかりません")
	// ErrKeyFetch はJWKSの取得または解析に失敗した場合に返される。
	ErrKeyFetch = errors.New("JWKSの取得に失敗しました")
)

const (
	// defaultFetchTimeout はHTTPクライアント未指定時のJWKS取得タイムアウト。
	defaultFetchTimeout = 5 * time.Second
	// DefaultMinRefreshInterval は未知のkidによる再取得の最小間隔の既定値。
	// 0のため鍵のローテーション直後でも新しいkidを即座に取得する。
	DefaultMinRefreshInterval time.Duration = 0
)

// Resolver はkidから公開鍵を解決する。複数のゴルーチンから同時に使用できる。
type Resolver struct {
	// jwksURL はJWKSドキュメントのURL。
	jwksURL string
	// httpClient はJWKS取得に使用するHTTPクライアント。
	httpClient *http.Client
	// minRefresh は未知のkidによる再取得の最小間隔。
	minRefresh time.Duration
	// logger は構造化ロガー。
	logger *zap.Logger
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time

	mu        sync.RWMutex
	keys      map[string]any
	lastFetch time.Time

	group singleflight.Group
}

// Option はResolverの設定を変更する。
type Option func(*Resolver)

// WithHTTPClient はJWKS取得に使用するHTTPクライアントを設定する。
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithMinRefreshInterval は未知のkidでJWKSを再取得する最小間隔を設定する。
// 0の場合は未知のkidのたびに再取得する。
func WithMinRefreshInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d >= 0 {
			r.minRefresh = d
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New は新しいResolverを生成する。
func New(jwksURL string, opts ...Option) *Resolver {
	r := &Resolver{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: defaultFetchTimeout},
		minRefresh: DefaultMinRefreshInterval,
		logger:     zap.NewNop(),
		now:        time.Now,
		keys:       make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve はkidに対応する公開鍵を返す。
// キャッシュに無い場合はJWKSを取得してから探索する。
func (r *Resolver) Resolve(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: kidが空です", ErrKeyNotFound)
	}
	if key, ok := r.lookup(kid); ok {
		return key, nil
	}
	if !r.refreshAllowed() {
		return nil, fmt.Errorf("%w: kid=%s", ErrKeyNotFound, kid)
	}

	// 呼び出し元の切断で他の待機者まで失敗しないよう、キャンセルを切り離す
	fetchCtx := context.WithoutCancel(ctx)
	_, err, _ := r.group.Do(r.jwksURL, func() (any, error) {
		return nil, r.refresh(fetchCtx)
	})
	if err != nil {
		return nil, err
	}

	if key, ok := r.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid=%s", ErrKeyNotFound, kid)
}

// lookup はキャッシュからkidの鍵を探す。
func (r *Resolver) lookup(kid string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[kid]
	return key, ok
}

// refreshAllowed は前回の取得から最小間隔が経過しているかを返す。
func (r *Resolver) refreshAllowed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastFetch.IsZero() || r.now().Sub(r.lastFetch) >= r.minRefresh
}

// refresh はJWKSを取得し、未登録のkidをキャッシュに追記する。
func (r *Resolver) refresh(ctx context.Context) error {
	set, err := jwk.Fetch(ctx, r.jwksURL, jwk.WithHTTPClient(r.httpClient))
	if err != nil {
		r.logger.Warn("JWKSの取得に失敗", zap.String("url", r.jwksURL), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrKeyFetch, err)
	}

	fetched := make(map[string]any, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := key.KeyID()
		if kid == "" || key.KeyUsage() == string(jwk.ForEncryption) {
			continue
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			r.logger.Warn("JWKの公開鍵を展開できません", zap.String("kid", kid), zap.Error(err))
			continue
		}
		fetched[kid] = raw
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for kid, raw := range fetched {
		if _, exists := r.keys[kid]; exists {
			continue
		}
		r.keys[kid] = raw
		added++
	}
	r.lastFetch = r.now()

	r.logger.Debug("JWKSを取得しました", zap.Int("keys", len(fetched)), zap.Int("added", added))
	return nil
}
