package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMode は認証判定の適用ポリシーを表す。
type AuthMode string

const (
	// AuthModeObserve は判定を記録するのみで、リクエストを遮断しない。
	// 元システムと互換の既定ポリシー。
	AuthModeObserve AuthMode = "observe"
	// AuthModeEnforce は保護対象ルートで未認証リクエストを401で遮断する。
	AuthModeEnforce AuthMode = "enforce"
)

// bearerPrefix はAuthorizationヘッダーのBearerスキーム接頭辞。
// 大文字小文字を区別して照合する。
const bearerPrefix = "Bearer "

// Verifier はベアラートークンの署名・発行者・対象者・有効期間を検証する。
// 検証は副作用を持たず、設定された信頼パラメータとトークンのみに依存する。
type Verifier struct {
	// key は署名検証用の共通鍵。
	key []byte
	// issuer は許可する発行者クレーム。
	issuer string
	// audience は許可する対象者クレーム。
	audience string
}

// NewVerifier は新しいトークン検証器を生成する。
func NewVerifier(key, issuer, audience string) *Verifier {
	return &Verifier{
		key:      []byte(key),
		issuer:   issuer,
		audience: audience,
	}
}

// Verify はベアラートークンを検証し認証判定を返す。
// 署名不正・発行者不一致・対象者不一致・期限切れ・未到達（nbf）・
// 形式不正のいずれであっても区別せずfalseを返す。失敗理由を呼び出し元に
// 露出しないのは検証内部の情報漏えいを避けるため。
func (v *Verifier) Verify(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(_ *jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	return err == nil && token.Valid
}

// GenerateToken は検証器の信頼パラメータと整合するJWTトークンを生成する。
// 開発用トークン発行エンドポイントとテストが使用する。
func GenerateToken(key, issuer, audience, subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Auth はベアラートークンの認証判定を行うGinミドルウェアを返す。
// 判定結果はコンテキストに記録され、レスポンスフェーズのログレコードに
// 含まれる。observeモードでは判定がリクエストの可否に影響しない。
// enforceモードではprotectedPathに一致する未認証リクエストを401で遮断する。
//
// Authorizationヘッダーが無い、またはBearer接頭辞を持たない場合、
// 検証器は呼び出されず判定は未認証となる。
func Auth(verifier *Verifier, mode AuthMode, protectedPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		verdict := false
		if raw, found := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix); found {
			verdict = verifier.Verify(strings.TrimSpace(raw))
		}
		c.Set(contextKeyAuthenticated, verdict)

		if mode == AuthModeEnforce && !verdict &&
			strings.EqualFold(c.Request.URL.Path, protectedPath) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証に失敗しました",
			})
			return
		}

		c.Next()
	}
}
