package caravan

import "errors"

// Failure kinds returned by the registry. Operations wrap one of these with a
// human-readable reason; match with errors.Is.
var (
	ErrDuplicateID          = errors.New("caravan already exists")
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientResource = errors.New("insufficient resources")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrCapacity             = errors.New("not enough space")
	ErrPermission           = errors.New("permission denied")
	ErrPersistence          = errors.New("persistence failure")
)
