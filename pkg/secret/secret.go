// Package secret は利用者の所属組織ごとにプロバイダのシークレットを解決する。
//
// 組織はメールアドレスのドメイン（"@"の後ろ、最初の"."まで）で識別し、
// シークレットは起動時に環境変数 <DOMAIN>_<PROVIDER>_KEY から読み込む。
// 解決結果はキャッシュせず、リクエストごとに導出する。
package secret

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoDomain はメールアドレスから組織ドメインを導出できない場合に返される。
	ErrNoDomain = errors.New("メールアドレスから組織を特定できません")
	// ErrNotProvisioned は組織に対してシークレットが設定されていない場合に返される。
	ErrNotProvisioned = errors.New("組織にシークレットが設定されていません")
)

// keySuffix は環境変数名の末尾。
const keySuffix = "_KEY"

// Store は組織ドメイン -> プロバイダ -> シークレット の対応表。
// 生成後は読み取り専用で、並行アクセスに対して安全。
type Store struct {
	secrets map[string]map[string]string
}

// NewStore は対応表からStoreを生成する。
// ドメインとプロバイダは小文字に正規化され、空のシークレットは無視される。
func NewStore(secrets map[string]map[string]string) *Store {
	s := &Store{secrets: make(map[string]map[string]string, len(secrets))}
	for domain, providers := range secrets {
		for provider, value := range providers {
			s.set(domain, provider, value)
		}
	}
	return s
}

func (s *Store) set(domain, provider, value string) {
	domain = strings.ToLower(domain)
	provider = strings.ToLower(provider)
	if domain == "" || provider == "" || value == "" {
		return
	}
	if s.secrets[domain] == nil {
		s.secrets[domain] = make(map[string]string)
	}
	s.secrets[domain][provider] = value
}

// FromEnviron は "KEY=VALUE" 形式の環境変数一覧からStoreを生成する。
// providersに含まれるプロバイダの <DOMAIN>_<PROVIDER>_KEY のみを読み込む。
func FromEnviron(environ []string, providers []string) *Store {
	s := &Store{secrets: make(map[string]map[string]string)}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		upper := strings.ToUpper(name)
		for _, provider := range providers {
			suffix := "_" + strings.ToUpper(provider) + keySuffix
			domain, found := strings.CutSuffix(upper, suffix)
			if !found || domain == "" {
				continue
			}
			s.set(domain, provider, value)
		}
	}
	return s
}

// DomainOf はメールアドレスから組織ドメインを導出する。
// "alice@acme.com" は "acme" になる。形式が不正な場合は空文字列を返す。
func DomainOf(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(host, "@") {
		return ""
	}
	domain, _, _ := strings.Cut(host, ".")
	return strings.ToLower(strings.TrimSpace(domain))
}

// Lookup はメールアドレスの組織に対するプロバイダのシークレットを返す。
func (s *Store) Lookup(email, provider string) (string, error) {
	domain := DomainOf(email)
	if domain == "" {
		return "", ErrNoDomain
	}
	value, ok := s.secrets[domain][strings.ToLower(provider)]
	if !ok {
		return "", fmt.Errorf("%w: domain=%s, provider=%s", ErrNotProvisioned, domain, provider)
	}
	return value, nil
}

// Resolve はメールアドレスの組織に設定されている全てのシークレットを返す。
// 設定されていないプロバイダは含まれない。
func (s *Store) Resolve(email string) map[string]string {
	out := make(map[string]string)
	for provider, value := range s.secrets[DomainOf(email)] {
		out[provider] = value
	}
	return out
}

// Domains は設定済みの組織ドメインを昇順で返す。
func (s *Store) Domains() []string {
	domains := make([]string, 0, len(s.secrets))
	for d := range s.secrets {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
