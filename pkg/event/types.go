// Package event はゲートウェイのアクセス判定イベントを定義する。
//
// イベントは1リクエストにつき1件生成され、監査ログに追記される。
// 利用者のメールアドレスやトークンなどの識別情報は含めない。
package event

import (
	"encoding/json"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeAccessForwarded はリクエストが上流APIへ転送されたことを表す。
	TypeAccessForwarded Type = "AccessForwarded"
	// TypeAccessRejected はリクエストがゲートウェイで拒否されたことを表す。
	TypeAccessRejected Type = "AccessRejected"
)

// Event は監査ログに追記される不変のイベントレコード。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// RequestID は対応するリクエストのID。
	RequestID string `json:"request_id"`
	// Route は判定したルートのパスプレフィックス。
	Route string `json:"route"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// ForwardedData はAccessForwardedイベントのデータ。
type ForwardedData struct {
	// Method はHTTPメソッド。
	Method string `json:"method"`
	// Path はプレフィックスを除去した上流側のパス。
	Path string `json:"path"`
	// Status は上流APIのステータスコード。
	Status int `json:"status"`
	// DurationMS はゲートウェイでの処理時間（ミリ秒）。
	DurationMS int64 `json:"duration_ms"`
}

// RejectedData はAccessRejectedイベントのデータ。
type RejectedData struct {
	// Method はHTTPメソッド。
	Method string `json:"method"`
	// Path はリクエストのパス。
	Path string `json:"path"`
	// Status は返したステータスコード。
	Status int `json:"status"`
	// Code は拒否理由のコード。
	Code string `json:"code"`
}
