package broker

import "github.com/edgewatt/powerexporter/internal/errors"

// Error codes specific to the RPC broker
const (
	ErrDeviceNotConnected = errors.ErrorCode("broker_device_not_connected")
	ErrRequestTimeout     = errors.ErrorCode("broker_request_timeout")
	ErrRequestCanceled    = errors.ErrorCode("broker_request_canceled")
	ErrConnectionLost     = errors.ErrorCode("broker_connection_lost")
	ErrRemoteError        = errors.ErrorCode("broker_remote_error")
	ErrProtocolViolation  = errors.ErrorCode("broker_protocol_violation")
)
