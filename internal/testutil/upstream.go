package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// UpstreamRequest は上流スタブが受け取ったリクエストの記録。
type UpstreamRequest struct {
	Method string
	// Path はエスケープ済みのパス。
	Path     string
	RawQuery string
	Host     string
	Header   http.Header
	Body     string
}

// UpstreamServer は受け取ったリクエストを記録して返す上流APIのスタブ。
// レスポンスには上流独自のCORSヘッダーを含める。
type UpstreamServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []UpstreamRequest
	handler  http.HandlerFunc
}

// NewUpstreamServer は上流APIのスタブを起動する。
// handlerがnilの場合は受け取ったパスとクエリをJSONで返す。
func NewUpstreamServer(t *testing.T, handler http.HandlerFunc) *UpstreamServer {
	t.Helper()

	s := &UpstreamServer{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, UpstreamRequest{
			Method:   r.Method,
			Path:     r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Host:     r.Host,
			Header:   r.Header.Clone(),
			Body:     string(body),
		})
		s.mu.Unlock()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "false")
		if s.handler != nil {
			s.handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":  r.URL.Path,
			"query": r.URL.RawQuery,
		})
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests は受け取ったリクエストの一覧を返す。
func (s *UpstreamServer) Requests() []UpstreamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpstreamRequest(nil), s.requests...)
}

// Hits は受け取ったリクエスト数を返す。
func (s *UpstreamServer) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
