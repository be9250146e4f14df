package clerk

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/docgate/pkg/identity"
	"github.com/nao1215/docgate/pkg/token"
	"go.uber.org/zap"
)

// ErrLookupFailed はユーザーレコードからIdentityを確定できなかった場合に返される。
var ErrLookupFailed = errors.New("ユーザー情報を取得できませんでした")

// Enricher は検証済みクレームからIdentityを確定する。
type Enricher struct {
	// users はユーザーレコードの取得先。
	users UserFetcher
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewEnricher は新しいEnricherを生成する。
func NewEnricher(users UserFetcher, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{users: users, logger: logger}
}

// Enrich はクレームからIdentityを返す。
// roleに未置換のプレースホルダがある場合のみユーザーレコードを1回取得し、
// public_metadata.role（未設定ならbasic）と先頭のメールアドレスを使う。
// roleが具体的な値であればemailの内容にかかわらずクレームをそのまま使う。
// 取得に失敗した場合はErrLookupFailedを返し、Identityは確定しない。
func (e *Enricher) Enrich(ctx context.Context, claims *token.Claims) (*identity.Identity, error) {
	if claims == nil {
		return nil, fmt.Errorf("%w: クレームがありません", ErrLookupFailed)
	}
	if !claims.RoleUnresolved() {
		return &identity.Identity{
			Role:  identity.ParseRole(claims.Role),
			Email: claims.Email,
		}, nil
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subjectがありません", ErrLookupFailed)
	}

	user, err := e.users.GetUser(ctx, claims.Subject)
	if err != nil {
		e.logger.Warn("ユーザーレコードの取得に失敗",
			zap.String("subject", claims.Subject),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	role := user.PublicMetadata.Role
	if role == "" {
		role = string(identity.RoleBasic)
	}
	return &identity.Identity{
		Role:  identity.ParseRole(role),
		Email: user.PrimaryEmail(),
	}, nil
}
