package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Outbound API header names (KSO-1 scheme)
const (
	HeaderKsoDate          = "X-Kso-Date"
	HeaderKsoAuthorization = "X-Kso-Authorization"

	// SchemeKSO1 prefixes the authorization value
	SchemeKSO1 = "KSO-1"
)

// SignedRequest is the signing material of one outbound call. Build a new one
// for every attempt; the Date must differ between calls.
type SignedRequest struct {
	Method        string
	Resource      string
	ContentHash   string
	ContentType   string
	Date          string
	StringToSign  string
	Signature     string
	Authorization string
}

// Headers returns the headers that carry the signature.
func (r SignedRequest) Headers() map[string]string {
	return map[string]string{
		HeaderKsoDate:          r.Date,
		HeaderKsoAuthorization: r.Authorization,
	}
}

// Signer produces KSO-1 signatures for outbound API calls.
type Signer struct {
	appID  string
	secret string
}

// NewSigner creates a KSO-1 signer.
func NewSigner(appID, secret string) *Signer {
	return &Signer{appID: appID, secret: secret}
}

// SignOutbound signs the given request fields. Empty fields are kept as empty
// lines in the string to sign. It performs no I/O.
func (s *Signer) SignOutbound(method, resourcePath, contentHash, contentType, dateHeader string) SignedRequest {
	method = strings.ToUpper(method)
	stringToSign := strings.Join([]string{method, contentHash, contentType, dateHeader, resourcePath}, "\n")

	mac := hmac.New(sha1.New, []byte(s.secret))
	mac.Write([]byte(stringToSign))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return SignedRequest{
		Method:        method,
		Resource:      resourcePath,
		ContentHash:   contentHash,
		ContentType:   contentType,
		Date:          dateHeader,
		StringToSign:  stringToSign,
		Signature:     sig,
		Authorization: SchemeKSO1 + ":" + s.appID + ":" + sig,
	}
}

// ContentMD5 returns the hex md5 of body, or "" for an empty body.
func ContentMD5(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalResource appends the query string with keys sorted.
func CanonicalResource(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	// url.Values.Encode sorts by key
	return path + "?" + query.Encode()
}

// DateHeader formats t as an RFC1123 GMT date.
func DateHeader(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
