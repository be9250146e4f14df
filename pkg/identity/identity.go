// Package identity はゲートウェイが1リクエストの間だけ信頼する利用者情報を定義する。
//
// Identity は署名検証済みのトークンからのみ生成され、リクエストのコンテキストに
// 保持される。永続化やリクエスト間での共有は行わない。
package identity

import "context"

// Role は利用者のアクセス階層を表す。
type Role string

const (
	// RoleBasic は認証済みの全利用者が持つ基本階層。
	RoleBasic Role = "basic"
	// RolePaid は有料プランの利用者の階層。
	RolePaid Role = "paid"
)

// ParseRole はクレームやユーザーレコード上の文字列をRoleに変換する。
// "paid" と完全一致する場合のみRolePaidとなり、それ以外はすべてRoleBasicになる。
func ParseRole(s string) Role {
	if s == string(RolePaid) {
		return RolePaid
	}
	return RoleBasic
}

// Satisfies はrが要求階層requiredを満たすかを判定する。
// paid要求はpaidのみ、basic要求は任意の認証済み階層で満たされる。
func (r Role) Satisfies(required Role) bool {
	if required == RolePaid {
		return r == RolePaid
	}
	return true
}

// Identity は認証済み利用者のゲートウェイ内での表現。
type Identity struct {
	// Role は利用者のアクセス階層。
	Role Role
	// Email は利用者のメールアドレス。空文字列の場合もある。
	Email string
}

type contextKey struct{}

// NewContext はIdentityを保持した新しいコンテキストを返す。
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext はコンテキストからIdentityを取り出す。
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}
