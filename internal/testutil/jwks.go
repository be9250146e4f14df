// Package testutil はテストで使用するIDプロバイダのスタブを提供する。
//
// RSA署名鍵の生成、JWKSを配信するテストサーバー、セッショントークンの発行を
// 各パッケージのテストで共通化する。本番コードからは参照しない。
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SigningKey はテスト用のRSA署名鍵とそのkid。
type SigningKey struct {
	// KID は鍵識別子。
	KID string
	// Private は署名に使用する秘密鍵。
	Private *rsa.PrivateKey
}

// NewSigningKey は2048bitのRSA署名鍵を生成する。
func NewSigningKey(t *testing.T, kid string) *SigningKey {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA鍵の生成に失敗: %v", err)
	}
	return &SigningKey{KID: kid, Private: priv}
}

// SessionClaims はテストで発行するセッショントークンのクレーム。
type SessionClaims struct {
	jwt.RegisteredClaims
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

// Sign はRS256でクレームに署名したトークン文字列を返す。
func (k *SigningKey) Sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = k.KID
	signed, err := tok.SignedString(k.Private)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}

// Session は有効期限1時間のセッショントークンを発行する。
func (k *SigningKey) Session(t *testing.T, subject, role, email string) string {
	t.Helper()

	return k.Sign(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:  role,
		Email: email,
	})
}

// JWKSServer はJWKSドキュメントを配信するテストサーバー。
type JWKSServer struct {
	*httptest.Server

	mu     sync.RWMutex
	keys   []*SigningKey
	status int
	hits   atomic.Int64
}

// NewJWKSServer は指定した鍵を公開するJWKSサーバーを起動する。
// サーバーはテスト終了時に停止する。
func NewJWKSServer(t *testing.T, keys ...*SigningKey) *JWKSServer {
	t.Helper()

	s := &JWKSServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.hits.Add(1)

		s.mu.RLock()
		status := s.status
		keys := append([]*SigningKey(nil), s.keys...)
		s.mu.RUnlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		set := jwk.NewSet()
		for _, k := range keys {
			pub, err := jwk.FromRaw(&k.Private.PublicKey)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = pub.Set(jwk.KeyIDKey, k.KID)
			_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)
			_ = pub.Set(jwk.KeyUsageKey, jwk.ForSignature)
			_ = set.AddKey(pub)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.Close)
	return s
}

// SetKeys は公開する鍵を差し替える。鍵のローテーションを再現する。
func (s *JWKSServer) SetKeys(keys ...*SigningKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

// SetStatus はJWKS取得時に返すステータスコードを設定する。
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits はJWKSが取得された回数を返す。
func (s *JWKSServer) Hits() int64 {
	return s.hits.Load()
}
