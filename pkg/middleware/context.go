package middleware

import "github.com/gin-gonic/gin"

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID = "request_id"

// contextKeyAuthenticated はコンテキストに認証判定を格納するためのキー。
const contextKeyAuthenticated = "authenticated"

// contextKeyQuotaSubject はコンテキストに加入者識別子を格納するためのキー。
const contextKeyQuotaSubject = "quota_subject"

// RequestID はGinコンテキストからリクエストIDを取得する。
// AccessLogミドルウェアが事前に適用されている必要がある。
func RequestID(c *gin.Context) string {
	v, _ := c.Get(contextKeyRequestID)
	if id, ok := v.(string); ok {
		return id
	}
	return ""
}

// IsAuthenticated はGinコンテキストから認証判定を取得する。
// Authミドルウェア未適用時はfalseを返す。
func IsAuthenticated(c *gin.Context) bool {
	v, _ := c.Get(contextKeyAuthenticated)
	if verdict, ok := v.(bool); ok {
		return verdict
	}
	return false
}

// QuotaSubject はGinコンテキストから加入者識別子を取得する。
// クォータ対象外のリクエストでは空文字列を返す。
func QuotaSubject(c *gin.Context) string {
	v, _ := c.Get(contextKeyQuotaSubject)
	if subject, ok := v.(string); ok {
		return subject
	}
	return ""
}
