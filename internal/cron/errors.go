package cron

import "errors"

var (
	ErrAlreadyRunning  = errors.New("cron service already running")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrStoreRequired   = errors.New("cron service requires a store")
)
