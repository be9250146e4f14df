// Package httpclient は外部APIとのHTTP通信を行うクライアントを提供する。
//
// IDプロバイダのユーザーレコード取得など、ゲートウェイ自身が発行する
// リクエストで使用する。認証情報の付与はCredentialAttacherを実装した値を
// Transportに渡して行い、グローバルなHTTPクライアントは書き換えない。
package httpclient
