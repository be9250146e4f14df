package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// ClerkUser はスタブが返すユーザーレコード。
type ClerkUser struct {
	// Role はpublic_metadata.role。空の場合はメタデータに含めない。
	Role string
	// Emails は登録済みメールアドレス。
	Emails []string
}

// ClerkServer はユーザーレコードAPIのスタブサーバー。
type ClerkServer struct {
	*httptest.Server

	mu        sync.RWMutex
	users     map[string]ClerkUser
	status    int
	lastAuth  string
	lastPath  string
	lastReqID string
	hits      atomic.Int64
}

// NewClerkServer はユーザーレコードAPIのスタブを起動する。
func NewClerkServer(t *testing.T, users map[string]ClerkUser) *ClerkServer {
	t.Helper()

	s := &ClerkServer{users: users, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		s.lastPath = r.URL.EscapedPath()
		s.lastReqID = r.Header.Get("X-Request-ID")
		status := s.status
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"errors":[{"code":"stub_error"}]}`))
			return
		}

		id, ok := strings.CutPrefix(r.URL.Path, "/v1/users/")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		s.mu.RLock()
		u, found := s.users[id]
		s.mu.RUnlock()
		if !found {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"code":"resource_not_found"}]}`))
			return
		}

		body := map[string]any{"id": id}
		meta := map[string]any{}
		if u.Role != "" {
			meta["role"] = u.Role
		}
		body["public_metadata"] = meta
		emails := make([]map[string]string, 0, len(u.Emails))
		for _, e := range u.Emails {
			emails = append(emails, map[string]string{"email_address": e})
		}
		body["email_addresses"] = emails

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// SetStatus は全てのリクエストに返すステータスコードを設定する。
func (s *ClerkServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits はユーザーレコードAPIが呼ばれた回数を返す。
func (s *ClerkServer) Hits() int64 {
	return s.hits.Load()
}

// LastAuthorization は直近のリクエストのAuthorizationヘッダーを返す。
func (s *ClerkServer) LastAuthorization() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAuth
}

// LastPath は直近のリクエストのエスケープ済みパスを返す。
func (s *ClerkServer) LastPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPath
}

// LastRequestID は直近のリクエストのX-Request-IDヘッダーを返す。
func (s *ClerkServer) LastRequestID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReqID
}
