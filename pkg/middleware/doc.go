// Package middleware はゲートウェイのリクエスト処理パイプラインを構成する
// Ginミドルウェアを提供する。
//
// ステージは固定順序で適用される: アクセスログ → リカバリ →
// スロットル（任意） → 認証判定 → クォータ → シークレット付与。
// 各ステージはGinコンテキスト経由で後続ステージに判定結果
// （認証判定、加入者識別子、リクエストID）を引き渡す。
package middleware
