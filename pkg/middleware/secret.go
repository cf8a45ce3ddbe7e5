package middleware

import "github.com/gin-gonic/gin"

// HeaderGatewaySecret はアップストリームへの転送時に付与する
// 共有シークレットのヘッダーキー。アップストリームはこのヘッダーを持つ
// リクエストのみを信頼し、ゲートウェイを経由しない直接アクセスを拒否する。
const HeaderGatewaySecret = "X-Gateway-Secret"

// GatewaySecret は転送リクエストに共有シークレットヘッダーを無条件で
// 付与するGinミドルウェアを返す。クライアントが同名ヘッダーを送って
// きた場合は上書きする。
func GatewaySecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Set(HeaderGatewaySecret, secret)
		c.Next()
	}
}
