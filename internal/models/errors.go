package models

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient deposit balance")
)
