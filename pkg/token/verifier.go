// Package token はIDプロバイダが発行したセッショントークンを検証する。
//
// 署名アルゴリズムはRS256のみを受け付け、ヘッダーのkidに対応する公開鍵を
// 都度KeyResolverから取得して署名と有効期限を検証する。
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm は受け付ける唯一の署名アルゴリズム。
const Algorithm = "RS256"

// PlaceholderMarker は発行元のテンプレートが置換されなかったクレーム値に残る記号。
const PlaceholderMarker = "{{"

var (
	// ErrInvalidToken は署名・形式・鍵解決のいずれかに失敗したトークンを表す。
	ErrInvalidToken = errors.New("トークンが無効です")
	// ErrExpired は有効期限切れのトークンを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
)

// Claims はセッショントークンのペイロード。
type Claims struct {
	jwt.RegisteredClaims
	// Role は利用者のアクセス階層。未置換のプレースホルダの場合がある。
	Role string `json:"role,omitempty"`
	// Email は利用者のメールアドレス。未置換のプレースホルダの場合がある。
	Email string `json:"email,omitempty"`
}

// RoleUnresolved はroleに未置換のプレースホルダが残っていればtrueを返す。
// emailだけが未置換の場合はfalseとなる。
func (c *Claims) RoleUnresolved() bool {
	return strings.Contains(c.Role, PlaceholderMarker)
}

// KeyResolver はkidから署名検証用の公開鍵を解決する。
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (any, error)
}

// Verifier はセッショントークンの署名と有効期限を検証する。
type Verifier struct {
	// resolver は公開鍵の解決に使用する。
	resolver KeyResolver
	// leeway は有効期限判定の許容誤差。
	leeway time.Duration
	// timeFunc は現在時刻を返す。nilの場合はtime.Now。
	timeFunc func() time.Time
}

// VerifierOption はVerifierの設定を変更する。
type VerifierOption func(*Verifier)

// WithLeeway は有効期限判定の許容誤差を設定する。
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithTimeFunc は現在時刻の取得関数を差し替える。
func WithTimeFunc(f func() time.Time) VerifierOption {
	return func(v *Verifier) { v.timeFunc = f }
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(resolver KeyResolver, opts ...VerifierOption) *Verifier {
	v := &Verifier{resolver: resolver}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify はトークン文字列を検証し、クレームを返す。
// 有効期限切れはErrExpired、それ以外の失敗はすべてErrInvalidTokenでラップされる。
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser().ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("トークンヘッダーにkidがありません")
		}
		key, err := v.resolver.Resolve(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("署名鍵の解決に失敗: %w", err)
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// parser はRS256のみを許可し有効期限を必須とするパーサーを返す。
func (v *Verifier) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.timeFunc != nil {
		opts = append(opts, jwt.WithTimeFunc(v.timeFunc))
	}
	return jwt.NewParser(opts...)
}
