package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/billing-gateway/pkg/logging"
)

// headerKeyRequestID はリクエストIDをクライアントへ返すためのHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// AccessLog はリクエストフェーズとレスポンスフェーズのログレコードを
// 1件ずつ出力するGinミドルウェアを返す。パイプラインの最外殻に配置し、
// レイテンシはこのミドルウェアへの進入からレスポンス確定までを計測する。
//
// レスポンスレコードはクォータ拒否・転送障害・パニック回復を含む
// すべての終了経路で出力される。
func AccessLog(logger *logging.AccessLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		c.Set(contextKeyRequestID, requestID)
		c.Header(headerKeyRequestID, requestID)

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		// ContentLengthは申告が無い場合に-1となり、そのまま番兵値として使う
		logger.LogRequest(logging.RequestRecord{
			RequestID: requestID,
			Method:    c.Request.Method,
			Path:      path,
			SourceIP:  c.ClientIP(),
			Headers:   logging.SnapshotHeaders(c.Request.Header),
			Size:      c.Request.ContentLength,
		})

		c.Next()

		logger.LogResponse(logging.ResponseRecord{
			RequestID:     requestID,
			Status:        c.Writer.Status(),
			Latency:       time.Since(start),
			Size:          int64(c.Writer.Size()),
			Authenticated: IsAuthenticated(c),
			Subject:       QuotaSubject(c),
		})
	}
}
