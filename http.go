package vmedia

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Signature adds HMAC signature headers to outgoing notification requests.
type Signature struct {
	// BaseHeader is the header name that should contain the signature(s). Example: X-Vmedia-Signature
	BaseHeader string
	// DisableAlgoHeader puts all signatures in BaseHeader instead of one header per algorithm.
	// Default is one header per algorithm. Example: X-Vmedia-Signature-256 and X-Vmedia-Signature-512
	DisableAlgoHeader bool
	// PayloadHeaders are headers whose values are appended to the body before signing. Example: X-Vmedia-Timestamp
	PayloadHeaders []string
	// HMAC is the HMAC to use for signing
	HMAC HMAC
}

// AddSignature signs the request body plus the values of PayloadHeaders and sets the signature headers.
// The request body is restored so the request can still be sent.
func (s Signature) AddSignature(req *http.Request) error {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	payload := SignedPayload(body, req.Header, s.PayloadHeaders)
	signed, err := s.HMAC.Sign(payload)
	if err != nil {
		return err
	}

	if s.DisableAlgoHeader {
		all := append(append([]string{}, signed[SHA256]...), signed[SHA512]...)
		if len(all) > 0 {
			req.Header.Set(s.BaseHeader, strings.Join(all, ","))
		}
		return nil
	}
	if len(signed[SHA256]) > 0 {
		req.Header.Set(fmt.Sprintf("%s-%s", s.BaseHeader, SHA256Short), strings.Join(signed[SHA256], ","))
	}
	if len(signed[SHA512]) > 0 {
		req.Header.Set(fmt.Sprintf("%s-%s", s.BaseHeader, SHA512Short), strings.Join(signed[SHA512], ","))
	}

	return nil
}

// SignedPayload is the byte sequence a consumer must sign to verify a request:
// the body followed by each included header value, no separator.
func SignedPayload(body []byte, header http.Header, include []string) []byte {
	out := append([]byte{}, body...)
	for _, h := range include {
		if val := header.Get(h); val != "" {
			out = append(out, []byte(val)...)
		}
	}
	return out
}
