package gateway

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/billing-gateway/pkg/logging"
	"github.com/nao1215/billing-gateway/pkg/middleware"
	"github.com/nao1215/billing-gateway/pkg/quota"
)

// mappingErrorBody は転送障害時にクライアントへ返す固定ボディ。
// 障害の内部詳細はサーバー側ログにのみ記録し、クライアントへは漏らさない。
const mappingErrorBody = "Mapping template error"

// Server は課金ゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// config はゲートウェイの設定。
	config Config
	// store はクォータカウンタの永続化層。
	store quota.Store
	// accessLogger はアクセスログの出力先。
	accessLogger *logging.AccessLogger
	// verifier はベアラートークンの検証器。
	verifier *middleware.Verifier
	// forwarder はアップストリームへの転送器。
	forwarder Forwarder
	// clock は現在時刻の取得に使用する。
	clock quota.Clock
}

// NewServer は設定に従って新しいゲートウェイサーバーを生成する。
// クォータストアとアクセスログシンクはここで生成され、Closeで解放される。
func NewServer(cfg Config) (*Server, error) {
	store, err := newQuotaStore(cfg)
	if err != nil {
		return nil, err
	}

	accessLogger, err := newAccessLogger(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &Server{
		router:       gin.New(),
		config:       cfg,
		store:        store,
		accessLogger: accessLogger,
		verifier:     middleware.NewVerifier(cfg.JWTKey, cfg.JWTIssuer, cfg.JWTAudience),
		forwarder:    newHTTPForwarder(),
		clock:        time.Now,
	}
	s.setupRoutes()

	return s, nil
}

// newQuotaStore は設定されたバックエンドのクォータストアを生成する。
func newQuotaStore(cfg Config) (quota.Store, error) {
	switch cfg.QuotaBackend {
	case "memory":
		return quota.NewMemoryStore(), nil
	case "sqlite":
		return quota.NewSQLiteStore(cfg.QuotaDBPath)
	case "redis":
		return quota.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("未知のクォータバックエンド: %q", cfg.QuotaBackend)
	}
}

// newAccessLogger は設定に従ってアクセスロガーを生成する。
func newAccessLogger(cfg Config) (*logging.AccessLogger, error) {
	if cfg.LogFile == "" {
		return logging.New(os.Stdout), nil
	}
	return logging.NewWithFile(cfg.LogFile)
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.config.Port))
}

// Close はサーバーが保持するリソース（クォータストア、ログファイル）を解放する。
func (s *Server) Close() error {
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("クォータストアのクローズに失敗: %w", err)
	}
	if err := s.accessLogger.Close(); err != nil {
		return fmt.Errorf("アクセスログのクローズに失敗: %w", err)
	}
	return nil
}

// setupRoutes はポリシーパイプラインとルーティングを設定する。
// ミドルウェアの順序は固定であり入れ替えてはならない:
// アクセスログ（最外殻・レイテンシ計測起点） → リカバリ →
// スロットル → 認証判定 → クォータ → シークレット付与 → 転送。
func (s *Server) setupRoutes() {
	cfg := s.config

	s.router.Use(middleware.AccessLog(s.accessLogger))
	s.router.Use(middleware.Recovery())
	if cfg.ThrottleRPS > 0 {
		s.router.Use(middleware.Throttle(middleware.ThrottleOptions{
			RPS:   cfg.ThrottleRPS,
			Burst: cfg.ThrottleBurst,
		}))
	}
	s.router.Use(middleware.Auth(s.verifier, cfg.AuthMode, cfg.ProtectedPath))
	s.router.Use(middleware.Quota(middleware.QuotaOptions{
		Store:        s.store,
		Path:         cfg.ProtectedPath,
		Limit:        cfg.QuotaLimit,
		SubjectParam: cfg.QuotaSubjectParam,
		Clock:        s.clock,
	}))
	s.router.Use(middleware.GatewaySecret(cfg.GatewaySecret))

	// 開発用トークン発行エンドポイント。本番環境では無効化すべき。
	if cfg.DevTokenEnabled {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	// 上記以外のすべてのパスはアップストリームへ転送する
	s.router.NoRoute(s.handleForward())
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 発行されるトークンはゲートウェイ自身の検証器と整合する。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := uuid.New().String()
		token, err := middleware.GenerateToken(
			s.config.JWTKey, s.config.JWTIssuer, s.config.JWTAudience, subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: request_id=%s, error=%v", middleware.RequestID(c), err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"subject": subject,
		})
	}
}

// handleForward はリクエストをアップストリームへ転送するハンドラを返す。
// 転送障害はここで捕捉し、固定の400レスポンスに変換する。障害詳細は
// サーバー側ログにのみ残す。
func (s *Server) handleForward() gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := s.config.UpstreamURL + c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			proxyURL += "?" + raw
		}

		result, err := s.forwarder.Forward(
			c.Request.Context(), c.Request.Method, proxyURL, c.Request.Header, c.Request.Body)
		if err != nil {
			log.Printf("転送障害: request_id=%s, url=%s, error=%v",
				middleware.RequestID(c), proxyURL, err)
			c.String(http.StatusBadRequest, mappingErrorBody)
			c.Abort()
			return
		}

		contentType := result.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(result.StatusCode, contentType, result.Body)
	}
}
