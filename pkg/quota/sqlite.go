package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// スキーマ定義。カウンタはUPSERT1文でアトミックに確認・加算する。
const schema = `
CREATE TABLE IF NOT EXISTS quota_counters (
    subject TEXT NOT NULL,
    day TEXT NOT NULL,
    route TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    expires_at DATETIME NOT NULL,
    PRIMARY KEY (subject, day, route)
);

CREATE INDEX IF NOT EXISTS idx_quota_counters_expires_at
    ON quota_counters(expires_at);
`

// SQLiteStore はSQLiteを背後に持つクォータストア。
// プロセス再起動をまたいでカウンタが保持される。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// clock は現在時刻の取得に使用する。
	clock Clock
	// sweepEvery は失効レコードをまとめて削除する間隔。
	sweepEvery time.Duration
	// mu はlastSweepへのアクセスを保護する。
	mu sync.Mutex
	// lastSweep は最後に失効レコードを削除した時刻。
	lastSweep time.Time
}

// SQLiteStoreOption はSQLiteStoreの生成オプション。
type SQLiteStoreOption func(*SQLiteStore)

// WithSQLiteClock は現在時刻の取得関数を差し替える。テスト用。
func WithSQLiteClock(clock Clock) SQLiteStoreOption {
	return func(s *SQLiteStore) { s.clock = clock }
}

// WithSQLiteSweepInterval は失効レコードの削除間隔を変更する。
func WithSQLiteSweepInterval(d time.Duration) SQLiteStoreOption {
	return func(s *SQLiteStore) { s.sweepEvery = d }
}

// NewSQLiteStore は指定パスのSQLiteデータベースを開きスキーマを適用する。
// WALモードとビジータイムアウトはmodernc.org/sqliteの_pragma構文で
// 指定する。書き込みはSQLite自体が直列化するため接続数を1に固定し、
// 並行Admit同士がSQLITE_BUSYで衝突しないようにする。
func NewSQLiteStore(path string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLiteStore(db, opts...)
}

// newSQLiteStore は既存のDB接続からストアを生成する。テストからも使用する。
func newSQLiteStore(db *sql.DB, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{
		db:         db,
		clock:      time.Now,
		sweepEvery: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}

// admitQuery は存在しなければcount=1で挿入し、存在すれば上限未満の場合のみ
// 加算するUPSERT。拒否時はWHERE句が成立せず行が返らない。
const admitQuery = `
INSERT INTO quota_counters (subject, day, route, count, created_at, expires_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT (subject, day, route) DO UPDATE
    SET count = count + 1
    WHERE quota_counters.count < ?
RETURNING count
`

// Admit はUPSERT1文でカウンタをアトミックに確認・加算する。
// 暦日がキーに含まれるため前日の行が当日の判定と衝突することはないが、
// 同一キーの失効済み行が残っていた場合はその行を取り除いたうえで
// 新しいウィンドウとして再試行する。失効レコードの一括削除は
// 書き込み競合を増やさないよう、Admitごとではなく一定間隔で行う。
func (s *SQLiteStore) Admit(ctx context.Context, key Key, limit int) (Decision, error) {
	now := s.clock().UTC()
	s.maybeSweep(ctx, now)

	// 2周目は失効済み行を取り除いた後の再試行
	for attempt := 0; attempt < 2; attempt++ {
		var count int
		err := s.db.QueryRowContext(ctx, admitQuery,
			key.Subject, key.Day, key.Route, now, nextMidnightUTC(now), limit,
		).Scan(&count)
		if err == nil {
			return Admitted, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Admitted, fmt.Errorf("カウンタの更新に失敗: %w", err)
		}

		// 上限到達か、失効済みの行が残っているだけかを区別する
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM quota_counters
			 WHERE subject = ? AND day = ? AND route = ? AND expires_at <= ?`,
			key.Subject, key.Day, key.Route, now)
		if err != nil {
			return Admitted, fmt.Errorf("失効レコードの削除に失敗: %w", err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return Admitted, fmt.Errorf("削除結果の取得に失敗: %w", err)
		}
		if deleted == 0 {
			return Denied, nil
		}
	}
	return Denied, nil
}

// maybeSweep は前回の削除からsweepEvery以上経過していた場合に
// 失効レコードをまとめて削除する。削除の失敗はAdmitの判定に影響させない。
func (s *SQLiteStore) maybeSweep(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if now.Sub(s.lastSweep) < s.sweepEvery {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM quota_counters WHERE expires_at <= ?`, now); err != nil {
		log.Printf("失効レコードの削除に失敗: %v", err)
	}
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
