package auth

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// FailureRecorder receives authentication outcomes. The session health
// monitor implements it.
type FailureRecorder interface {
	RecordFailure()
	RecordSuccess()
}

// Interceptor is an http.RoundTripper that attaches the bearer token to
// outgoing requests and records explicit auth rejections. It is the only
// path that feeds the session health monitor.
type Interceptor struct {
	Base     http.RoundTripper
	Tokens   TokenSource
	Recorder FailureRecorder
}

// NewInterceptor wraps base (http.DefaultTransport when nil).
func NewInterceptor(base http.RoundTripper, tokens TokenSource, recorder FailureRecorder) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Interceptor{Base: base, Tokens: tokens, Recorder: recorder}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if token := i.Tokens.Token(); token != "" {
		clone.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := i.Base.RoundTrip(clone)
	if err != nil {
		// Transport-level failure, not an auth rejection. Never counts
		// against session health.
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		logrus.WithFields(logrus.Fields{
			"function": "RoundTrip",
			"status":   resp.StatusCode,
			"url":      req.URL.Path,
		}).Warn("Request rejected by server auth")
		if i.Recorder != nil {
			i.Recorder.RecordFailure()
		}
		i.Tokens.RequireValidation()
	default:
		if resp.StatusCode < 400 && i.Recorder != nil {
			i.Recorder.RecordSuccess()
		}
	}

	return resp, nil
}
