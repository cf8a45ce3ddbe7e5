// 課金ゲートウェイサービスのエントリポイント。
// すべての受信リクエストにポリシーパイプライン（アクセスログ、認証判定、
// 日次クォータ、共有シークレット付与）を適用し、課金APIへ転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"log"

	"github.com/nao1215/billing-gateway/internal/gateway"
)

func main() {
	cfg := gateway.LoadConfig()

	server, err := gateway.NewServer(cfg)
	if err != nil {
		log.Fatalf("ゲートウェイサーバーの初期化に失敗: %v", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Printf("リソースの解放に失敗: %v", err)
		}
	}()

	log.Printf("ゲートウェイサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("ゲートウェイサービスの起動に失敗: %v", err)
	}
}
