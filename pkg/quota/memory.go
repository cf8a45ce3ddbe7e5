package quota

import (
	"context"
	"sync"
	"time"
)

// record はインメモリストアが保持するカウンタレコード。
type record struct {
	// count は当該ウィンドウ内で許可したリクエスト数。
	count int
	// createdAt はレコードの生成時刻。
	createdAt time.Time
	// expiresAt はレコードの失効時刻（生成時刻の翌UTC深夜0時）。
	expiresAt time.Time
}

// MemoryStore はプロセスローカルなインメモリのクォータストア。
// 単一インスタンス構成向けであり、複数インスタンスにまたがる
// カウンタ共有が必要な場合はRedisStoreを使用する。
type MemoryStore struct {
	// mu はrecordsへのアクセスを保護する。
	mu sync.Mutex
	// records はキー文字列からカウンタレコードへのマップ。
	records map[string]*record
	// clock は現在時刻の取得に使用する。
	clock Clock
	// sweepEvery は失効レコードを回収するバックグラウンド掃除の間隔。
	sweepEvery time.Duration
	// done は掃除ゴルーチンの停止を通知する。
	done chan struct{}
	// closeOnce はCloseの多重呼び出しを防ぐ。
	closeOnce sync.Once
}

// MemoryStoreOption はMemoryStoreの生成オプション。
type MemoryStoreOption func(*MemoryStore)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(clock Clock) MemoryStoreOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// WithSweepInterval はバックグラウンド掃除の間隔を変更する。
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.sweepEvery = d }
}

// NewMemoryStore は新しいインメモリクォータストアを生成する。
// 失効レコードはアクセス時に遅延判定されるほか、バックグラウンドの
// 掃除ゴルーチンが定期的にマップから回収する。
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records:    make(map[string]*record),
		clock:      time.Now,
		sweepEvery: 10 * time.Minute,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

// Admit はキーに対応するカウンタをアトミックに確認・加算する。
// 失効済みレコードは新しいウィンドウとして作り直すため、
// 前日のカウンタが当日の拒否判定に使われることはない。
func (s *MemoryStore) Admit(_ context.Context, key Key, limit int) (Decision, error) {
	now := s.clock()
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[k]
	if !ok || !now.Before(rec.expiresAt) {
		s.records[k] = &record{
			count:     1,
			createdAt: now,
			expiresAt: nextMidnightUTC(now),
		}
		return Admitted, nil
	}

	if rec.count >= limit {
		return Denied, nil
	}
	rec.count++
	return Admitted, nil
}

// Close はバックグラウンド掃除を停止する。
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// sweepLoop は失効レコードを定期的にマップから回収する。
func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep は失効済みレコードをすべて削除する。
func (s *MemoryStore) sweep() {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, k)
		}
	}
}

// len は保持中のレコード数を返す。テスト用。
func (s *MemoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
