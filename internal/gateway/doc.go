// Package gateway はドキュメントサイト向けゲートウェイの内部実装を提供する。
//
// 訪問者のセッショントークンを検証してアクセス階層（basic/paid）を判定し、
// ルート表に従って上流のサードパーティAPIへリクエストを転送する。
// ルートによっては所属組織ごとのAPIキーを上流へのリクエストに付与する。
// レスポンスのCORSヘッダーは常にドキュメントサイトのオリジンに書き換える。
package gateway
