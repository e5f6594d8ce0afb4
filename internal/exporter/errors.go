package exporter

import "github.com/edgewatt/powerexporter/internal/errors"

// Error codes specific to the exporter service
const (
	ErrReloadTimeout  = errors.ErrorCode("exporter_reload_timeout")
	ErrBodyTooLarge   = errors.ErrorCode("exporter_body_too_large")
	ErrTooManyEntries = errors.ErrorCode("exporter_too_many_entries")
)
