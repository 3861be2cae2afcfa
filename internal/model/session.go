package model

import "time"

// Session はアカウントのログインセッションを表す。
// IDは推測不可能な不透明キーであり、Cookie経由でクライアントに渡される。
// クライアントがキーの中身を解釈することはない。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
