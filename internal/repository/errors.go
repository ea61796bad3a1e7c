package repository

import "errors"

var (
	// ErrQuotaExceeded is returned by a fast tier that cannot hold the write.
	ErrQuotaExceeded = errors.New("fast tier quota exceeded")
	ErrNotFound      = errors.New("record not found")
)
