package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpstreamPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		prefix string
		want   string
	}{
		{name: "プレフィックスを除いたパスを返すこと", path: "/api/zippopotam/us/90210", prefix: "/api/zippopotam", want: "/us/90210"},
		{name: "プレフィックスのみの場合はルートパスを返すこと", path: "/api/zippopotam", prefix: "/api/zippopotam", want: "/"},
		{name: "末尾の/は保持すること", path: "/api/zippopotam/", prefix: "/api/zippopotam", want: "/"},
		{name: "エスケープされたパスも扱えること", path: "/api/httpbin/a%2Fb", prefix: "/api/httpbin", want: "/a%2Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := upstreamPath(tt.path, tt.prefix); got != tt.want {
				t.Errorf("upstreamPath(%q, %q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestRemoveCookie(t *testing.T) {
	t.Parallel()

	t.Run("指定したクッキーだけを取り除くこと", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Cookie", "__session=tok; theme=dark; lang=ja")
		removeCookie(req, "__session")

		if _, err := req.Cookie("__session"); !errors.Is(err, http.ErrNoCookie) {
			t.Errorf("__sessionが残っている: %v", err)
		}
		for _, name := range []string{"theme", "lang"} {
			if _, err := req.Cookie(name); err != nil {
				t.Errorf("%sが取り除かれた: %v", name, err)
			}
		}
	})

	t.Run("クッキーが無い場合はCookieヘッダーを設定しないこと", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		removeCookie(req, "__session")

		if got := req.Header.Values("Cookie"); len(got) != 0 {
			t.Errorf("Cookie = %v, want empty", got)
		}
	})
}

// timeoutError はTimeoutがtrueを返すnet.Error。
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "DeadlineExceededはタイムアウトであること", err: context.DeadlineExceeded, want: true},
		{name: "ラップされたnet.Errorのタイムアウトを判定できること", err: fmt.Errorf("dial: %w", timeoutError{}), want: true},
		{name: "接続拒否はタイムアウトでないこと", err: errors.New("connection refused"), want: false},
		{name: "キャンセルはタイムアウトでないこと", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isTimeout(tt.err); got != tt.want {
				t.Errorf("isTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
