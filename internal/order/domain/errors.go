package domain

import "errors"

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderTerminal = errors.New("order already terminal")
	ErrInvalidStatus = errors.New("invalid target status")
)
