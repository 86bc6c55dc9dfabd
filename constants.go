package knet

import "errors"

// Handshake headers sent when a gateway session is opened.
const (
	HeaderIntents       = "X-Intents"
	HeaderAuthorization = "Authorization"
	HeaderPresence      = "X-Presence"
	HeaderSessionID     = "X-SessionId"
)

// Rate limit headers read from REST responses.
const (
	HeaderGlobalLimit  = "X-RateLimit-Global-Limit"
	HeaderGlobalWindow = "X-RateLimit-Global-WindowMilliseconds"
	HeaderRouteLimit   = "X-RateLimit-Route-Limit"
	HeaderRouteWindow  = "X-RateLimit-Route-WindowMilliseconds"
	HeaderIsGlobal     = "X-RateLimit-IsGlobal"
	HeaderResetsAt     = "X-RateLimit-ResetsAt"
)

const (
	HeaderContentType   = "Content-Type"
	ContentTypeJSON     = "application/json"
	AuthorizationPrefix = "Bearer "
)

// Close codes chosen by the gateway receive loop (RFC 6455).
const (
	CloseNormal          = 1000
	CloseUnsupportedData = 1003
	CloseAbnormal        = 1006
	CloseInvalidPayload  = 1007
	CloseInternalError   = 1011
)

// Standard error messages
const (
	// Gateway errors
	ErrMsgAddressRequired  = "gateway address is required"
	ErrMsgIntentsRequired  = "gateway intents are required"
	ErrMsgAlreadyConnected = "gateway session already open"
	ErrMsgNotConnected     = "gateway session is not connected"

	// Connection errors
	ErrMsgConnectionClosed = "connection is closed"
	ErrMsgFragmentedSend   = "fragmented sends are not supported"
	ErrMsgFailedToEncode   = "failed to encode message"
)

var (
	ErrAddressRequired  = errors.New(ErrMsgAddressRequired)
	ErrIntentsRequired  = errors.New(ErrMsgIntentsRequired)
	ErrAlreadyConnected = errors.New(ErrMsgAlreadyConnected)
	ErrNotConnected     = errors.New(ErrMsgNotConnected)
	ErrConnectionClosed = errors.New(ErrMsgConnectionClosed)
	ErrFragmentedSend   = errors.New(ErrMsgFragmentedSend)
)
