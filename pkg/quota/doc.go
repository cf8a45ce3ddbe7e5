// Package quota は加入者ごとの日次リクエストクォータを管理するカウンタストアを提供する。
//
// カウンタのキーは（加入者識別子、UTC暦日、保護対象ルート）の組であり、
// UTC深夜0時にウィンドウがリセットされる。チェックと加算は単一の
// アトミック操作として実行され、同一キーへの並行リクエストでも
// 上限を超過しないことを保証する。
//
// バックエンドはインメモリ（単一インスタンス向け）、SQLite（再起動を
// またいだ永続化）、Redis（水平スケール時の共有カウンタ）の3種類を
// Storeインターフェースの背後に差し替え可能な形で提供する。
package quota
