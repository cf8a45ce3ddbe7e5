package quota

import (
	"context"
	"fmt"
	"time"
)

// Decision はクォータ判定の結果を表す。
type Decision int

const (
	// Admitted はリクエストが許可されたことを表す。
	Admitted Decision = iota
	// Denied は上限到達によりリクエストが拒否されたことを表す。
	Denied
)

// String はDecisionの文字列表現を返す。
func (d Decision) String() string {
	if d == Admitted {
		return "admitted"
	}
	return "denied"
}

// dayFormat はキーに含めるUTC暦日のフォーマット。
const dayFormat = "20060102"

// Key はクォータカウンタを一意に識別するキー。
// 同一の加入者・同一のUTC暦日・同一ルートのリクエストは1つのカウンタを共有する。
type Key struct {
	// Subject は加入者識別子。クエリパラメータが無い場合は "unknown"。
	Subject string
	// Day はUTC暦日（yyyyMMdd形式）。
	Day string
	// Route は保護対象ルートの識別子。
	Route string
}

// NewKey は加入者識別子と保護対象ルートから現在時刻に対応するキーを生成する。
// 暦日はUTCで計算するため、ウィンドウはUTC深夜0時にリセットされる。
func NewKey(subject, route string, now time.Time) Key {
	return Key{
		Subject: subject,
		Day:     now.UTC().Format(dayFormat),
		Route:   route,
	}
}

// String はストアのキー文字列を返す。
func (k Key) String() string {
	return fmt.Sprintf("rate_limit:%s:%s:%s", k.Route, k.Subject, k.Day)
}

// Store はクォータカウンタの永続化層を抽象化するインターフェース。
// Admitのチェックと加算は同一キーへの並行呼び出しに対してアトミックで
// なければならない（読み取りと書き込みを分離した実装は上限超過を招く）。
type Store interface {
	// Admit はキーに対応するカウンタを確認し、上限未満であれば加算して
	// Admittedを返す。上限到達済みの場合は加算せずDeniedを返す。
	Admit(ctx context.Context, key Key, limit int) (Decision, error)
	// Close はストアが保持するリソースを解放する。
	Close() error
}

// Clock は現在時刻を返す関数。テストで時刻を固定するために差し替える。
type Clock func() time.Time

// nextMidnightUTC は指定時刻の翌UTC深夜0時を返す。
// カウンタレコードの失効時刻として使用し、キーの暦日とウィンドウの
// リセット境界を一致させる。
func nextMidnightUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
