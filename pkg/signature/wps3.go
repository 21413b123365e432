package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wps-bot-bridge/pkg/clock"
)

// Inbound webhook header names (WPS-3 scheme)
const (
	HeaderAppID     = "X-Kso-AppId"
	HeaderSignature = "X-Kso-Signature"
	HeaderTimestamp = "X-Kso-Timestamp"
	HeaderNonce     = "X-Kso-Nonce"
)

// DefaultWindow is the maximum allowed skew between the request timestamp and now,
// in either direction.
const DefaultWindow = 5 * time.Minute

var (
	// ErrUntrusted is the parent of every inbound verification failure
	ErrUntrusted = errors.New("untrusted request")

	// ErrMissingHeader indicates one of the required signing headers is absent
	ErrMissingHeader = fmt.Errorf("%w: missing header", ErrUntrusted)

	// ErrAppIDMismatch indicates the request was addressed to another application
	ErrAppIDMismatch = fmt.Errorf("%w: app id mismatch", ErrUntrusted)

	// ErrTimestampExpired indicates the timestamp is outside the validity window or unparseable
	ErrTimestampExpired = fmt.Errorf("%w: timestamp expired", ErrUntrusted)

	// ErrSignatureMismatch indicates the computed digest differs from the supplied one
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrUntrusted)
)

// InboundHeaders is the header bag carried by a webhook delivery.
type InboundHeaders struct {
	AppID     string
	Signature string
	Timestamp string // milliseconds since epoch
	Nonce     string
}

// Verifier validates inbound webhook deliveries against the WPS-3 scheme.
// The configured app id and secret are fixed for the lifetime of the Verifier.
//
// There is no nonce cache: an identical request replayed inside the window
// verifies again.
type Verifier struct {
	appID  string
	secret string
	window time.Duration
	clock  clock.Clock
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the clock used for the timestamp window.
func WithClock(c clock.Clock) VerifierOption {
	return func(v *Verifier) { v.clock = c }
}

// WithWindow overrides the timestamp validity window.
func WithWindow(window time.Duration) VerifierOption {
	return func(v *Verifier) {
		if window > 0 {
			v.window = window
		}
	}
}

// NewVerifier creates a WPS-3 verifier for the given application credentials.
func NewVerifier(appID, secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		appID:  appID,
		secret: secret,
		window: DefaultWindow,
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyInbound checks headers and body. A nil return means the request is
// authentic; any error wraps ErrUntrusted and the body must not be processed.
func (v *Verifier) VerifyInbound(headers InboundHeaders, rawBody []byte) error {
	if headers.AppID == "" || headers.Signature == "" || headers.Timestamp == "" || headers.Nonce == "" {
		return ErrMissingHeader
	}

	if headers.AppID != v.appID {
		return ErrAppIDMismatch
	}

	ts, err := strconv.ParseInt(headers.Timestamp, 10, 64)
	if err != nil {
		return ErrTimestampExpired
	}
	skew := v.clock.Now().Sub(time.UnixMilli(ts))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return ErrTimestampExpired
	}

	expected := ComputeWPS3(v.secret, headers.Timestamp, headers.Nonce, rawBody)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(headers.Signature))) {
		return ErrSignatureMismatch
	}

	return nil
}

// ComputeWPS3 returns hex(sha256(secret + timestamp + nonce + body)) in lower case.
func ComputeWPS3(secret, timestamp, nonce string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte(nonce))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
