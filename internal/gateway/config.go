package gateway

import (
	"os"
	"strconv"

	"github.com/nao1215/billing-gateway/pkg/middleware"
)

// Config はゲートウェイの設定。すべて環境変数から読み込む。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// JWTKey はトークン署名検証用の共通鍵。
	JWTKey string
	// JWTIssuer は許可するトークン発行者。
	JWTIssuer string
	// JWTAudience は許可するトークン対象者。
	JWTAudience string
	// AuthMode は認証ポリシー（observe または enforce）。
	AuthMode middleware.AuthMode
	// GatewaySecret はアップストリームへ伝播する共有シークレット。
	GatewaySecret string
	// UpstreamURL は転送先アップストリームのベースURL。
	UpstreamURL string
	// ProtectedPath は日次クォータを適用する保護対象ルート。
	ProtectedPath string
	// QuotaSubjectParam は加入者識別子を取り出すクエリパラメータ名。
	QuotaSubjectParam string
	// QuotaLimit はUTC暦日あたりの許可リクエスト数。
	QuotaLimit int
	// QuotaBackend はクォータストアのバックエンド（memory/sqlite/redis）。
	QuotaBackend string
	// QuotaDBPath はsqliteバックエンド使用時のデータベースファイルパス。
	QuotaDBPath string
	// RedisAddr はredisバックエンド使用時の接続先アドレス。
	RedisAddr string
	// RedisPassword はredisバックエンド使用時のパスワード。
	RedisPassword string
	// RedisDB はredisバックエンド使用時のデータベース番号。
	RedisDB int
	// ThrottleRPS はクライアントごとの秒間許容リクエスト数。0で無効。
	ThrottleRPS float64
	// ThrottleBurst はスロットルのバースト許容数。
	ThrottleBurst int
	// LogFile はアクセスログの追記先ファイルパス。空で標準出力のみ。
	LogFile string
	// DevTokenEnabled は開発用トークン発行エンドポイントの有効化フラグ。
	DevTokenEnabled bool
}

// LoadConfig は環境変数からゲートウェイ設定を読み込む。
// 未設定の項目には元システムと互換の既定値を適用する。
func LoadConfig() Config {
	return Config{
		Port:              getEnvOr("PORT", "8080"),
		JWTKey:            getEnvOr("JWT_KEY", "dev-secret-key"),
		JWTIssuer:         getEnvOr("JWT_ISSUER", "billing-gateway"),
		JWTAudience:       getEnvOr("JWT_AUDIENCE", "billing-api"),
		AuthMode:          middleware.AuthMode(getEnvOr("AUTH_MODE", string(middleware.AuthModeObserve))),
		GatewaySecret:     getEnvOr("GATEWAY_SECRET", "super-secret"),
		UpstreamURL:       getEnvOr("UPSTREAM_URL", "http://localhost:5050"),
		ProtectedPath:     getEnvOr("PROTECTED_PATH", "/api/v1/MobileProviderApp/query-bill"),
		QuotaSubjectParam: getEnvOr("QUOTA_SUBJECT_PARAM", "subscriberNo"),
		QuotaLimit:        getEnvIntOr("QUOTA_LIMIT", 3),
		QuotaBackend:      getEnvOr("QUOTA_BACKEND", "memory"),
		QuotaDBPath:       getEnvOr("QUOTA_DB_PATH", "/data/quota.db"),
		RedisAddr:         getEnvOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvIntOr("REDIS_DB", 0),
		ThrottleRPS:       getEnvFloatOr("THROTTLE_RPS", 0),
		ThrottleBurst:     getEnvIntOr("THROTTLE_BURST", 0),
		LogFile:           os.Getenv("LOG_FILE"),
		DevTokenEnabled:   getEnvBoolOr("DEV_TOKEN_ENABLED", false),
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvIntOr は整数の環境変数を取得する。未設定・解釈不能時はデフォルト値を返す。
func getEnvIntOr(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvFloatOr は浮動小数点数の環境変数を取得する。未設定・解釈不能時はデフォルト値を返す。
func getEnvFloatOr(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getEnvBoolOr は真偽値の環境変数を取得する。未設定・解釈不能時はデフォルト値を返す。
func getEnvBoolOr(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
