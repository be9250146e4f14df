// Package clerk はIDプロバイダ（Clerk）のユーザーレコードAPIを呼び出し、
// セッショントークンのクレームから利用者のIdentityを確定する。
//
// トークンのroleが発行元のテンプレート置換に失敗している場合のみ
// ユーザーレコードを取得し、それ以外はクレームをそのまま使う。
package clerk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nao1215/docgate/pkg/httpclient"
)

// DefaultBaseURL はClerk Backend APIのベースURL。
const DefaultBaseURL = "https://api.clerk.com"

// User はユーザーレコードAPIのレスポンスのうち、ゲートウェイが使用する部分。
type User struct {
	// ID はユーザーID。
	ID string `json:"id"`
	// PublicMetadata は公開メタデータ。roleを保持する。
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
	// EmailAddresses は登録済みメールアドレスの一覧。
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// PrimaryEmail は先頭のメールアドレスを返す。登録が無い場合は空文字列。
func (u *User) PrimaryEmail() string {
	if len(u.EmailAddresses) == 0 {
		return ""
	}
	return u.EmailAddresses[0].EmailAddress
}

// UserFetcher はユーザーIDからユーザーレコードを取得する。
type UserFetcher interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Client はClerk Backend APIのクライアント。
type Client struct {
	// http はサービスシークレットを付与するJSONクライアント。
	http *httpclient.Client
}

// NewClient は新しいClientを生成する。
// secretKeyは全てのリクエストにBearerトークンとして付与される。
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: httpclient.New(baseURL,
			httpclient.WithTimeout(timeout),
			httpclient.WithCredential(httpclient.BearerToken(secretKey)),
		),
	}
}

// errEmptyUserID はユーザーIDが空の場合に返される。
var errEmptyUserID = errors.New("ユーザーIDが空です")

// GetUser は GET /v1/users/{userID} を呼び出す。
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, errEmptyUserID
	}
	var u User
	if err := c.http.GetJSON(ctx, "/v1/users/"+url.PathEscape(userID), &u); err != nil {
		return nil, fmt.Errorf("ユーザーレコードの取得に失敗: %w", err)
	}
	return &u, nil
}
