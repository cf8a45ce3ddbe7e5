package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ForwardResult はアップストリームからの応答。
type ForwardResult struct {
	// StatusCode はアップストリームが返したHTTPステータスコード。
	StatusCode int
	// Header はアップストリームのレスポンスヘッダー。
	Header http.Header
	// Body はレスポンスボディ。
	Body []byte
}

// Forwarder はアップストリームへの転送操作を抽象化するインターフェース。
// ルーティング・リトライ・負荷分散は転送先コンポーネントの責務であり、
// パイプラインはこの1操作のみを呼び出す。
type Forwarder interface {
	// Forward はリクエストをアップストリームへ転送し、応答または
	// 転送障害を返す。
	Forward(ctx context.Context, method, url string, header http.Header, body io.Reader) (*ForwardResult, error)
}

// httpForwarder はHTTPクライアントによるForwarderの既定実装。
type httpForwarder struct {
	// client は転送に使用するHTTPクライアント。
	client *http.Client
}

// newHTTPForwarder は新しいHTTP転送器を生成する。
func newHTTPForwarder() *httpForwarder {
	return &httpForwarder{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Forward はメソッド・ヘッダー・ボディを保持したままアップストリームへ
// リクエストを転送する。シークレットヘッダーを含む受信時点のヘッダーが
// そのまま送出される。
func (f *httpForwarder) Forward(ctx context.Context, method, url string, header http.Header, body io.Reader) (*ForwardResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}
	req.Header = header.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("アップストリームとの通信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	return &ForwardResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
