package logging

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// SizeUnknown はボディサイズが不明な場合の番兵値。
const SizeUnknown int64 = -1

// RequestRecord はリクエストフェーズのログレコード。
type RequestRecord struct {
	// RequestID はレスポンスレコードとの突き合わせ用の一意識別子。
	RequestID string
	// Method はHTTPメソッド。
	Method string
	// Path はクエリ文字列を含むリクエストパス。
	Path string
	// SourceIP はクライアントの送信元アドレス。
	SourceIP string
	// Headers は受信時点のヘッダースナップショット。
	Headers map[string]string
	// Size は申告されたリクエストボディサイズ。不明時はSizeUnknown。
	Size int64
}

// ResponseRecord はレスポンスフェーズのログレコード。
type ResponseRecord struct {
	// RequestID は対応するリクエストレコードの識別子。
	RequestID string
	// Status はクライアントへ返したHTTPステータスコード。
	Status int
	// Latency はパイプライン開始からレスポンス確定までの経過時間。
	Latency time.Duration
	// Size はレスポンスボディサイズ。未書き込み・不明時はSizeUnknown。
	Size int64
	// Authenticated は認証判定の結果。
	Authenticated bool
	// Subject はクォータキーに使用した加入者識別子。未解決時は空文字列。
	Subject string
}

// AccessLogger はアクセスログレコードをシンクへ書き出すロガー。
type AccessLogger struct {
	// logger はレコードのレンダリングに使用するlogrusロガー。
	logger *logrus.Logger
	// file は追記専用のログファイル。未設定時はnil。
	file *os.File
}

// New は指定の出力先に書き込むアクセスロガーを生成する。
// シンクの書き込みエラーはlogrus内部で握りつぶされ、呼び出し元には
// 伝播しない。
func New(out io.Writer) *AccessLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.SetOutput(out)
	return &AccessLogger{logger: logger}
}

// NewWithFile は標準出力に加えて追記専用ファイルにも書き込む
// アクセスロガーを生成する。
func NewWithFile(path string) (*AccessLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
	}
	l := New(io.MultiWriter(os.Stdout, f))
	l.file = f
	return l, nil
}

// LogRequest はリクエストフェーズのレコードを1件出力する。
func (l *AccessLogger) LogRequest(rec RequestRecord) {
	if l == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"phase":        "request",
		"request_id":   rec.RequestID,
		"method":       rec.Method,
		"path":         rec.Path,
		"source_ip":    rec.SourceIP,
		"headers":      rec.Headers,
		"request_size": rec.Size,
	}).Info("request received")
}

// LogResponse はレスポンスフェーズのレコードを1件出力する。
func (l *AccessLogger) LogResponse(rec ResponseRecord) {
	if l == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"phase":         "response",
		"request_id":    rec.RequestID,
		"status":        rec.Status,
		"latency_ms":    rec.Latency.Milliseconds(),
		"response_size": rec.Size,
		"authenticated": rec.Authenticated,
		"subject":       rec.Subject,
	}).Info("response sent")
}

// Close は追記専用ファイルを閉じる。ファイル未設定時は何もしない。
func (l *AccessLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// SnapshotHeaders は受信ヘッダーのスナップショットを生成する。
// キーは大文字小文字を区別せず正規化し、同一キーに複数の値がある
// 場合は最後の値を採用する。
func SnapshotHeaders(h http.Header) map[string]string {
	snapshot := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		snapshot[key] = values[len(values)-1]
	}
	return snapshot
}
