// Package testutil holds HTTP helpers shared by the handler tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
)

// LoopbackAddr passes tsweb's local-only check on /debug/ routes.
const LoopbackAddr = "127.0.0.1:12345"

// NewLocalRequest builds a request from the loopback address. A non-nil
// form is sent as an urlencoded body.
func NewLocalRequest(method, target string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = LoopbackAddr
	return req
}

// ServeLocal runs a loopback request through h and returns the recording.
func ServeLocal(h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, NewLocalRequest(method, target, form))
	return rec
}
