package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// RequestTimeout bounds every individual remote call. Cycles touching
	// several systems can take a multiple of this in the worst case; that
	// is accepted, the bound is per call, not per cycle.
	RequestTimeout = 5 * time.Second

	acceptHeader = "application/json, application/xml, text/json, text/x-json, text/javascript, text/xml"
)

// Session holds the process-wide credential for authenticated calls.
// Reads snapshot the value under the lock so a concurrent Clear (logout
// while a request is in flight) yields a clean auth-missing failure instead
// of a torn read.
type Session struct {
	mu         sync.RWMutex
	credential string
}

// Credential returns the current Authorization header value, or "" when
// logged out.
func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

func (s *Session) set(credential string) {
	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()
}

// Clear drops the stored credential. Safe to call concurrently with
// in-flight requests.
func (s *Session) Clear() {
	s.set("")
}

// access is the request plumbing shared by all service calls: it applies
// the per-call timeout, encodes request bodies, decodes typed responses and
// maps transport faults onto the error taxonomy.
type access struct {
	client  *http.Client
	session *Session
	timeout time.Duration
}

func newAccess(client *http.Client, session *Session) *access {
	if client == nil {
		client = &http.Client{}
	}
	return &access{client: client, session: session, timeout: RequestTimeout}
}

// doRequest issues a single call. HTTP 200/202 decode into out (when out is
// non-nil), 201 is success without a body, and every other status is a
// silent failure: out is left at its zero value, whose UNKNOWN return
// status the callers treat as "no usable data". Only transport faults and
// timeouts surface as errors.
func (a *access) doRequest(ctx context.Context, method, url string, headers map[string]string, body []byte, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	log.Debug().Str("method", method).Str("url", url).Msg("Requesting")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		if out == nil {
			return nil
		}
		reply, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if err := json.Unmarshal(reply, out); err != nil {
			// Malformed body: absorbed as failure-with-empty-result.
			log.Warn().Str("url", url).Err(err).Msg("Could not decode response body")
			zero(out)
		}
	case http.StatusCreated:
		// success, nothing to return
	default:
		log.Debug().Str("url", url).Int("status", resp.StatusCode).Msg("Request failed with unexpected response code")
	}
	return nil
}

// get issues an authenticated GET, decoding the response into out.
func (a *access) get(ctx context.Context, url string, out any) error {
	return a.authenticated(ctx, http.MethodGet, url, nil, out)
}

// put issues an authenticated PUT with a JSON body; out may be nil.
func (a *access) put(ctx context.Context, url string, body any, out any) error {
	return a.authenticated(ctx, http.MethodPut, url, body, out)
}

func (a *access) authenticated(ctx context.Context, method, url string, body any, out any) error {
	credential := a.session.Credential()
	if credential == "" {
		return ErrNotAuthenticated
	}
	headers := map[string]string{
		"Authorization":  credential,
		"Accept":         acceptHeader,
		"Accept-Charset": "utf-8",
	}
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}
	return a.doRequest(ctx, method, url, headers, encoded, "application/json", out)
}

// zero resets *T to its zero value after a failed decode so callers never
// see a half-populated payload.
func zero(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}
