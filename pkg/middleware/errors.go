package middleware

import (
	"errors"
)

var (
	ErrVariantNotFound  = errors.New("variant not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrRowNotFound      = errors.New("row not found")
	ErrInvalidValue     = errors.New("invalid property value")
	ErrNoService        = errors.New("service not configured")
	ErrNoVariantScope   = errors.New("subscription has no variant")
)

// IsNotFound reports whether err is a miss on a variant, property or row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrRowNotFound)
}
