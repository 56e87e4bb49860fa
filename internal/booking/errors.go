package booking

import "errors"

var (
	ErrNotFound  = errors.New("request not found")
	ErrDuplicate = errors.New("request id already tracked")
)
