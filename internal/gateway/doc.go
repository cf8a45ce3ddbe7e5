// Package gateway は課金システムの前段に立つAPI Gatewayの内部実装を提供する。
//
// すべての受信リクエストに対して固定順序のポリシーパイプライン
// （アクセスログ、認証判定、日次クォータ、共有シークレット付与）を適用し、
// アップストリームの課金APIへ転送する。外部からアクセス可能な唯一の
// サービスであり、セキュリティの境界線として機能する。クォータ拒否と
// 転送障害はゲートウェイ自身が固定のレスポンスで終端する。
package gateway
