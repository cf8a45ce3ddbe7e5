package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/billing-gateway/pkg/quota"
)

// rateLimitExceededBody はクォータ拒否時にクライアントへ返す固定ボディ。
const rateLimitExceededBody = "Rate limit exceeded"

// QuotaOptions はQuotaミドルウェアの設定。
type QuotaOptions struct {
	// Store はクォータカウンタの永続化層。
	Store quota.Store
	// Path はクォータを適用する保護対象ルート。大文字小文字を区別せず
	// 完全一致で照合する。
	Path string
	// Limit はUTC暦日あたりの許可リクエスト数。0以下の場合は3。
	Limit int
	// SubjectParam は加入者識別子を取り出すクエリパラメータ名。
	// 空の場合は "subscriberNo"。
	SubjectParam string
	// Clock は現在時刻の取得関数。nilの場合はtime.Now。
	Clock quota.Clock
}

// Quota は保護対象ルートに日次クォータを適用するGinミドルウェアを返す。
// 保護対象外のパスはカウンタに一切触れず素通しする。
//
// 加入者識別子のクエリパラメータを省略したリクエストはすべて
// "unknown" の単一バケットを共有する。これは意図された単純化であり、
// パラメータを送らないクライアント同士が上限を食い合う点に注意。
//
// ストア障害時はフェイルオープンとし、サーバー側ログに記録したうえで
// リクエストを許可する。拒否はカウンタが上限に到達した場合に限る。
func Quota(opts QuotaOptions) gin.HandlerFunc {
	limit := opts.Limit
	if limit <= 0 {
		limit = 3
	}
	subjectParam := opts.SubjectParam
	if subjectParam == "" {
		subjectParam = "subscriberNo"
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return func(c *gin.Context) {
		if !strings.EqualFold(c.Request.URL.Path, opts.Path) {
			c.Next()
			return
		}

		subject := c.Query(subjectParam)
		if subject == "" {
			subject = "unknown"
		}
		c.Set(contextKeyQuotaSubject, subject)

		key := quota.NewKey(subject, opts.Path, clock())
		decision, err := opts.Store.Admit(c.Request.Context(), key, limit)
		if err != nil {
			log.Printf("クォータストアへのアクセスに失敗（フェイルオープン）: key=%s, error=%v", key, err)
			c.Next()
			return
		}

		if decision == quota.Denied {
			c.String(http.StatusTooManyRequests, rateLimitExceededBody)
			c.Abort()
			return
		}

		c.Next()
	}
}
