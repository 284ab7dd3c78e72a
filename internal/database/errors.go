package database

import "errors"

var (
	ErrManagerClosed     = errors.New("database manager is closed")
	ErrWriteTimeout      = errors.New("write operation timeout")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
