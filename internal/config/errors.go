package config

import "github.com/edgewatt/powerexporter/internal/errors"

// Error codes specific to configuration handling
const (
	ErrBindFlags       = errors.ErrBindFlags
	ErrReadConfig      = errors.ErrReadConfig
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrInvalidLogLevel = errors.ErrInvalidLogLevel

	ErrMissingDeviceType    = errors.ErrorCode("config_missing_device_type")
	ErrMalformedDocument    = errors.ErrorCode("config_malformed_document")
	ErrAuthorityUnreachable = errors.ErrorCode("config_authority_unreachable")
	ErrAuthorityRejected    = errors.ErrorCode("config_authority_rejected")
	ErrNoLocalFallback      = errors.ErrorCode("config_no_local_fallback")
	ErrSaveFailed           = errors.ErrorCode("config_save_failed")
)
