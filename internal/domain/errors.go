package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidEntry  = errors.New("invalid price level entry")
	ErrFeedClosed    = errors.New("feed connection closed")
	ErrNoSamples     = errors.New("no replay samples")
	ErrInvalidSource = errors.New("invalid replay source")
	ErrLeaseHeld     = errors.New("lease held by another writer")
)
