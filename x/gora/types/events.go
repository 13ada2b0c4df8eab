package types

// Gora module event type constants
const (
	EventTypeOracleRequest      = "oracle_request"
	EventTypeOracleResponse     = "oracle_response"
	EventTypeUnauthorizedCaller = "unauthorized_caller"
)

// Event attribute keys
const (
	AttributeKeyBoxKey       = "box_key"
	AttributeKeyRequestKey   = "request_key"
	AttributeKeyRequestType  = "request_type"
	AttributeKeyRequestID    = "request_id"
	AttributeKeyDestAppID    = "dest_app_id"
	AttributeKeyDestMethod   = "dest_method"
	AttributeKeyCallerAppID  = "caller_app_id"
	AttributeKeyErrorCode    = "error_code"
	AttributeKeySourceErrors = "source_errors"
)
