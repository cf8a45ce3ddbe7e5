// Package logging はゲートウェイのアクセスログレコードを提供する。
//
// 1リクエストにつきリクエストフェーズとレスポンスフェーズの構造化
// レコードを1件ずつJSON形式で出力する。出力先は標準出力と、設定時は
// 追記専用のログファイル。シンクの書き込み失敗はリクエスト処理に
// 影響させない。
package logging
