package domain

import "errors"

var (
	ErrParse          = errors.New("parse error")
	ErrNotFound       = errors.New("subscriber not found")
	ErrDeliveryFailed = errors.New("delivery failed")
	ErrConfig         = errors.New("configuration error")
)
