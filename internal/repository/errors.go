package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// 一意制約違反
	ErrDuplicate = errors.New("duplicate")
	// シリアライズ失敗・デッドロック（再試行可）
	ErrSerialization = errors.New("serialization failure")
	// lock_timeout / statement_timeout / ctx期限切れ
	ErrTxTimeout = errors.New("transaction timeout")
)
