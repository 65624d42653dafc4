package errors

import sterrors "errors"

var (
	ErrConfigRequired   = sterrors.New("lightmq: configuration is required")
	ErrLoggerRequired   = sterrors.New("lightmq: logger is required")
	ErrServiceRequired  = sterrors.New("lightmq: service is required")
	ErrServiceListEmpty = sterrors.New("lightmq: service list is empty")
	ErrClientIDTooLong  = sterrors.New("lightmq: client id is longer than the maximum id length of 48")
	ErrClientIDInvalid  = sterrors.New("lightmq: client id contains an invalid character")

	ErrTopicRequired      = sterrors.New("lightmq: topic is required")
	ErrPatternRequired    = sterrors.New("lightmq: topic pattern is required")
	ErrPayloadRequired    = sterrors.New("lightmq: payload is required")
	ErrUnsupportedPayload = sterrors.New("lightmq: payload type cannot be sent")
	ErrInvalidQoS         = sterrors.New("lightmq: qos must be 0 or 1")
	ErrInvalidTTL         = sterrors.New("lightmq: ttl cannot be negative")
	ErrInvalidCredit      = sterrors.New("lightmq: credit cannot be negative")
	ErrInvalidShare       = sterrors.New("lightmq: share name cannot contain a colon")
	ErrCallbackRequired   = sterrors.New("lightmq: callback is required for qos 1")

	ErrNotConnected      = sterrors.New("lightmq: client is not connected")
	ErrAlreadySubscribed = sterrors.New("lightmq: client already has a subscription for this address")
	ErrNotSubscribed     = sterrors.New("lightmq: client has no subscription for this address")
	ErrAlreadyConfirmed  = sterrors.New("lightmq: delivery has already been confirmed")
	ErrConnectCancelled  = sterrors.New("lightmq: connect cancelled by disconnect")
	ErrClientClosed      = sterrors.New("lightmq: client is closed")
)
