// Package middleware はゲートウェイのGinミドルウェアを提供する。
//
// セッショントークンによる認証、ロールによる認可、CORSヘッダーの付与、
// リクエストIDの発行、リクエストログ、パニックリカバリを含む。
// 拒否レスポンスは全て {"error": コード, "message": 説明} のJSONで返す。
package middleware
