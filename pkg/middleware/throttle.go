package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ThrottleOptions はThrottleミドルウェアの設定。
type ThrottleOptions struct {
	// RPS はクライアントごとの秒間許容リクエスト数。
	RPS float64
	// Burst は瞬間的に許容するバースト数。0以下の場合はRPSの切り上げ値。
	Burst int
	// IdleTTL はこの期間アクセスの無いクライアントのリミッタを破棄する。
	// 0の場合は15分。
	IdleTTL time.Duration
}

// throttleEntry はクライアントごとのトークンバケット。
type throttleEntry struct {
	// lim はトークンバケットリミッタ。
	lim *rate.Limiter
	// lastSeen は最終アクセス時刻。アイドル破棄の判定に使用する。
	lastSeen time.Time
}

// Throttle はクライアントIPごとのトークンバケットで瞬間流量を制限する
// Ginミドルウェアを返す。日次クォータとは独立した保護であり、
// バースト的な流入からアップストリームを守る。
//
// リミッタはアクセスの無いクライアント分を転送処理のついでに破棄する
// ため、専用の掃除ゴルーチンを持たない。
func Throttle(opts ThrottleOptions) gin.HandlerFunc {
	burst := opts.Burst
	if burst <= 0 {
		burst = int(opts.RPS) + 1
	}
	idleTTL := opts.IdleTTL
	if idleTTL == 0 {
		idleTTL = 15 * time.Minute
	}

	var (
		mu        sync.Mutex
		entries   = make(map[string]*throttleEntry)
		lastSweep = time.Now()
	)

	acquire := func(key string) *rate.Limiter {
		now := time.Now()

		mu.Lock()
		defer mu.Unlock()

		// 定期的にアイドル状態のリミッタを回収する
		if now.Sub(lastSweep) > idleTTL {
			cutoff := now.Add(-idleTTL)
			for k, ent := range entries {
				if ent.lastSeen.Before(cutoff) {
					delete(entries, k)
				}
			}
			lastSweep = now
		}

		if ent, ok := entries[key]; ok {
			ent.lastSeen = now
			return ent.lim
		}
		lim := rate.NewLimiter(rate.Limit(opts.RPS), burst)
		entries[key] = &throttleEntry{lim: lim, lastSeen: now}
		return lim
	}

	return func(c *gin.Context) {
		if !acquire(c.ClientIP()).Allow() {
			c.String(http.StatusTooManyRequests, rateLimitExceededBody)
			c.Abort()
			return
		}
		c.Next()
	}
}
