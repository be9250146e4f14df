package httpclient

import (
	"fmt"
	"net/http"
)

// CredentialAttacher は送信前のリクエストに認証情報を付与する。
type CredentialAttacher interface {
	AttachCredential(req *http.Request)
}

// BearerToken は Authorization: Bearer <token> を付与する。
type BearerToken string

// AttachCredential はAuthorizationヘッダーを設定する。
func (t BearerToken) AttachCredential(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+string(t))
}

// HeaderCredential は任意のヘッダーに書式化した値を付与する。
type HeaderCredential struct {
	// Header は設定するヘッダー名。
	Header string
	// Format は値の書式。%s に秘密情報が入る。空の場合は値をそのまま使う。
	Format string
	// Value は秘密情報。
	Value string
}

// AttachCredential はヘッダーを設定する。
func (h HeaderCredential) AttachCredential(req *http.Request) {
	v := h.Value
	if h.Format != "" {
		v = fmt.Sprintf(h.Format, h.Value)
	}
	req.Header.Set(h.Header, v)
}

// Transport は送信するリクエストの複製に認証情報を付与するRoundTripper。
// 呼び出し元のリクエストは変更しない。
type Transport struct {
	// Base は実際の送信に使うRoundTripper。nilの場合はhttp.DefaultTransport。
	Base http.RoundTripper
	// Attacher は認証情報を付与する。
	Attacher CredentialAttacher
}

// RoundTrip はリクエストを複製して認証情報を付与し、送信する。
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Attacher == nil {
		return base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	t.Attacher.AttachCredential(clone)
	return base.RoundTrip(clone)
}
