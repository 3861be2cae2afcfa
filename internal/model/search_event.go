package model

import "time"

// SearchEvent は1回の検索実行の不変レコードを表す。
// 追記専用であり、作成後の編集・削除は行わない。
// Termはトリム済み（大文字小文字・記号は保持）。
type SearchEvent struct {
	ID         string
	AccountID  string
	Term       string
	SearchedAt time.Time
}

// TrendingEntry は検索語の出現頻度集計の1エントリを表す。
// 永続化されない導出ビューであり、全アカウントのSearchEventを
// 語の完全一致でグループ化して都度計算する。
type TrendingEntry struct {
	Term  string
	Count int
}
