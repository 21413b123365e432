package http

// QueryMessageLogRequest struct - HTTP query request DTO
type QueryMessageLogRequest struct {
	Limit *int `json:"limit,omitempty" form:"limit" query:"limit" validate:"omitempty,gte=1,lte=100"`
}

// Inbound webhook header names as sent by the platform
const (
	HeaderAppID     = "X-Kso-AppId"
	HeaderSignature = "X-Kso-Signature"
	HeaderTimestamp = "X-Kso-Timestamp"
	HeaderNonce     = "X-Kso-Nonce"
	HeaderRequestID = "X-Request-Id"
)
