package entities

import "errors"

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantExists       = errors.New("tenant already exists")
	ErrFetchFailed        = errors.New("page fetch failed")
	ErrExtractionEmpty    = errors.New("no usable content extracted")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
