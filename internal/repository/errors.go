package repository

import "errors"

// ErrNotFound は更新対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("record not found")
