package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript はチェックと加算をRedisサーバー側でアトミックに実行する
// Luaスクリプト。上限到達済みの場合は加算せず-1を返す。
// 初回加算時にキーの失効時刻（翌UTC深夜0時）を設定する。
var admitScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
    return -1
end
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("EXPIREAT", KEYS[1], ARGV[2])
end
return count
`)

// RedisStore はRedisを背後に持つクォータストア。
// ゲートウェイを水平スケールさせる場合に複数インスタンスで
// カウンタを共有するために使用する。
type RedisStore struct {
	// client はRedisクライアント。
	client *redis.Client
	// clock は現在時刻の取得に使用する。
	clock Clock
}

// RedisStoreOption はRedisStoreの生成オプション。
type RedisStoreOption func(*RedisStore)

// WithRedisClock は現在時刻の取得関数を差し替える。テスト用。
func WithRedisClock(clock Clock) RedisStoreOption {
	return func(s *RedisStore) { s.clock = clock }
}

// NewRedisStore は指定アドレスのRedisに接続するクォータストアを生成する。
func NewRedisStore(addr, password string, db int, opts ...RedisStoreOption) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	s := &RedisStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit はLuaスクリプトでカウンタをアトミックに確認・加算する。
// キー自体がUTC暦日を含むため、失効前の古いキーが当日の判定に
// 使われることはない。
func (s *RedisStore) Admit(ctx context.Context, key Key, limit int) (Decision, error) {
	expireAt := nextMidnightUTC(s.clock()).Unix()

	result, err := admitScript.Run(ctx, s.client, []string{key.String()}, limit, expireAt).Int64()
	if err != nil {
		return Admitted, fmt.Errorf("カウンタの更新に失敗: %w", err)
	}
	if result < 0 {
		return Denied, nil
	}
	return Admitted, nil
}

// Close はRedisクライアントを閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
