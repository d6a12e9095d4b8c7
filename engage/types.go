package engage

import (
	"fmt"
	"net/url"
	"strings"
)

// Target identifies one site to engage: the page URL and its bare domain.
type Target struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// NewTarget normalizes a raw URL into a Target. A missing scheme defaults
// to https, the host is lowercased, and the domain drops a leading "www.".
func NewTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, ErrInvalidTarget
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	raw = strings.TrimRight(raw, "/")

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: scheme %q", ErrInvalidTarget, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, fmt.Errorf("%w: no host", ErrInvalidTarget)
	}
	u.Host = strings.ToLower(u.Host)

	return Target{
		URL:    u.String(),
		Domain: strings.TrimPrefix(host, "www."),
	}, nil
}

// Message is the outreach content delivered through the contact form.
// Body must be non-empty; Subject is optional.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Backend names a submission execution strategy.
type Backend string

const (
	BackendStatic   Backend = "static"   // single HTTP replay of the form
	BackendScripted Backend = "scripted" // headless browser interaction
)

// FailureKind classifies why an attempt did not submit. Empty on success.
type FailureKind string

const (
	FailNone           FailureKind = ""
	FailFetch          FailureKind = "fetch_failed"         // network / non-2xx page fetch
	FailNoForm         FailureKind = "no_form_found"        // no contact form identified
	FailCaptchaTimeout FailureKind = "captcha_timed_out"    // solver poll bound exhausted
	FailCaptchaSolver  FailureKind = "captcha_solver_error" // solver rejected or unsolvable kind
	FailRejected       FailureKind = "submission_rejected"  // classifier judged the response a failure
	FailBackend        FailureKind = "backend_unavailable"  // scripted backend could not initialize
)

// Outcome is the result of one engagement attempt. Negative results are
// carried here as values, never as errors; the caller logs the outcome and
// marks the domain attempted regardless of Submitted.
type Outcome struct {
	AttemptID string      `json:"attempt_id"`
	URL       string      `json:"url"`
	Domain    string      `json:"domain"`
	Submitted bool        `json:"submitted"`
	Backend   Backend     `json:"backend,omitempty"`   // backend that produced the final verdict
	Tried     []Backend   `json:"tried,omitempty"`     // backends attempted, in order
	Challenge string      `json:"challenge,omitempty"` // captcha kind encountered, if any
	Failure   FailureKind `json:"failure,omitempty"`
	Signal    string      `json:"signal,omitempty"` // raw phrase/status that decided the verdict
	Excerpt   string      `json:"excerpt,omitempty"` // short markdown rendering of the response page
	ElapsedMs int64       `json:"elapsed_ms"`
}
