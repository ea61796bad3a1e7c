package service

import "errors"

var (
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrItemNotFailed     = errors.New("queue item is not in failed state")
	ErrUnknownAction     = errors.New("unknown action kind")
	ErrInvalidOrder      = errors.New("order must have at least one item with positive quantity")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotSynced    = errors.New("order has not been accepted by the server yet")
	ErrProductNotFound   = errors.New("product not found")
	ErrNotLoggedIn       = errors.New("not logged in")
)
