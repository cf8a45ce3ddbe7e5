package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// テスト用の信頼パラメータ。
const (
	testKey      = "test-signing-key-for-unit-tests"
	testIssuer   = "billing-gateway"
	testAudience = "billing-api"
)

// signClaims は任意のクレームでHS256署名したトークンを生成する。
// 不正なクレームを持つトークンを作るために使用する。
func signClaims(t *testing.T, key string, claims jwt.RegisteredClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}

// validClaims は検証を通過するクレームを生成する。
func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		Subject:   "5551234",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}

// TestGenerateToken はGenerateToken関数を検証する。
func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("生成したトークンが検証を通過すること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateToken(testKey, testIssuer, testAudience, "5551234")
		if err != nil {
			t.Fatalf("GenerateToken()でエラーが発生: %v", err)
		}

		v := NewVerifier(testKey, testIssuer, testAudience)
		if !v.Verify(tokenStr) {
			t.Error("生成したトークンが検証に失敗した")
		}
	})

	t.Run("署名アルゴリズムがHS256であること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateToken(testKey, testIssuer, testAudience, "sub")
		if err != nil {
			t.Fatalf("GenerateToken()でエラーが発生: %v", err)
		}

		token, _, err := new(jwt.Parser).ParseUnverified(tokenStr, &jwt.RegisteredClaims{})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if token.Method.Alg() != "HS256" {
			t.Errorf("署名アルゴリズム = %q, want %q", token.Method.Alg(), "HS256")
		}
	})
}

// TestVerifierVerify はトークン検証の各失敗パターンを検証する。
// いずれの失敗も区別なくfalseに集約されること。
func TestVerifierVerify(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testKey, testIssuer, testAudience)

	t.Run("有効なトークンでtrueが返ること", func(t *testing.T) {
		t.Parallel()

		if !v.Verify(signClaims(t, testKey, validClaims())) {
			t.Error("有効なトークンが拒否された")
		}
	})

	t.Run("署名が有効でも対象者が異なる場合falseが返ること", func(t *testing.T) {
		t.Parallel()

		claims := validClaims()
		claims.Audience = jwt.ClaimStrings{"other-api"}
		if v.Verify(signClaims(t, testKey, claims)) {
			t.Error("対象者不一致のトークンが許可された")
		}
	})

	t.Run("発行者が異なる場合falseが返ること", func(t *testing.T) {
		t.Parallel()

		claims := validClaims()
		claims.Issuer = "other-issuer"
		if v.Verify(signClaims(t, testKey, claims)) {
			t.Error("発行者不一致のトークンが許可された")
		}
	})

	t.Run("異なる鍵で署名された場合falseが返ること", func(t *testing.T) {
		t.Parallel()

		if v.Verify(signClaims(t, "wrong-key", validClaims())) {
			t.Error("署名不正のトークンが許可された")
		}
	})

	t.Run("期限切れの場合falseが返ること", func(t *testing.T) {
		t.Parallel()

		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		if v.Verify(signClaims(t, testKey, claims)) {
			t.Error("期限切れのトークンが許可された")
		}
	})

	t.Run("NotBeforeが未来の場合falseが返ること", func(t *testing.T) {
		t.Parallel()

		claims := validClaims()
		claims.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))
		if v.Verify(signClaims(t, testKey, claims)) {
			t.Error("有効期間前のトークンが許可された")
		}
	})

	t.Run("有効期限クレームを持たない場合falseが返ること", func(t *testing.T) {
		t.Parallel()

		claims := validClaims()
		claims.ExpiresAt = nil
		if v.Verify(signClaims(t, testKey, claims)) {
			t.Error("有効期限なしのトークンが許可された")
		}
	})

	t.Run("形式不正の文字列でfalseが返ること", func(t *testing.T) {
		t.Parallel()

		if v.Verify("not-a-jwt-token") {
			t.Error("形式不正のトークンが許可された")
		}
	})
}

// newAuthTestRouter はAuthミドルウェアと判定キャプチャ用ハンドラを持つ
// テスト用ルーターを生成する。
func newAuthTestRouter(mode AuthMode, protectedPath string, verdict *bool) *gin.Engine {
	v := NewVerifier(testKey, testIssuer, testAudience)
	router := gin.New()
	router.Use(Auth(v, mode, protectedPath))
	router.NoRoute(func(c *gin.Context) {
		*verdict = IsAuthenticated(c)
		c.String(http.StatusOK, "forwarded")
	})
	return router
}

// TestAuthObserveMode はobserveモードのAuthミドルウェアを検証する。
func TestAuthObserveMode(t *testing.T) {
	t.Parallel()

	t.Run("Authorizationヘッダーが無くても転送されること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeObserve, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/bill", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if verdict {
			t.Error("認証判定 = true, want false")
		}
	})

	t.Run("無効なトークンでも転送されること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeObserve, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/bill", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if verdict {
			t.Error("認証判定 = true, want false")
		}
	})

	t.Run("有効なトークンで認証判定がtrueになること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeObserve, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/bill", nil)
		req.Header.Set("Authorization", "Bearer "+signClaims(t, testKey, validClaims()))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if !verdict {
			t.Error("認証判定 = false, want true")
		}
	})

	t.Run("小文字のbearer接頭辞は未認証扱いになること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeObserve, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/bill", nil)
		req.Header.Set("Authorization", "bearer "+signClaims(t, testKey, validClaims()))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if verdict {
			t.Error("認証判定 = true, want false")
		}
	})
}

// TestAuthEnforceMode はenforceモードのAuthミドルウェアを検証する。
func TestAuthEnforceMode(t *testing.T) {
	t.Parallel()

	t.Run("保護対象ルートへの未認証リクエストが401で遮断されること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeEnforce, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/bill", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("保護対象外ルートは未認証でも転送されること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeEnforce, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/other", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("保護対象ルートでも有効なトークンなら転送されること", func(t *testing.T) {
		t.Parallel()

		var verdict bool
		router := newAuthTestRouter(AuthModeEnforce, "/bill", &verdict)

		req := httptest.NewRequest(http.MethodGet, "/bill", nil)
		req.Header.Set("Authorization", "Bearer "+signClaims(t, testKey, validClaims()))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if !verdict {
			t.Error("認証判定 = false, want true")
		}
	})
}
