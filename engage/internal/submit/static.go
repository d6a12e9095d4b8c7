package submit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/formreach/formreach/engage/internal/fetch"
)

// Static replays a parsed form as a direct HTTP request, sending the
// built field values the way a browser would on submit. It shares the
// fetcher's HTTP client so cookies issued with the page ride along.
type Static struct {
	client   *http.Client
	ua       string
	maxBytes int64
	validate func(string) error
	logger   *slog.Logger
}

// StaticOption configures a Static backend.
type StaticOption func(*Static)

// WithStaticClient sets the HTTP client. Pass the fetcher's client to
// share its cookie jar.
func WithStaticClient(c *http.Client) StaticOption {
	return func(s *Static) { s.client = c }
}

// WithStaticUserAgent sets the User-Agent header.
func WithStaticUserAgent(ua string) StaticOption {
	return func(s *Static) { s.ua = ua }
}

// WithStaticValidator sets the URL check run on the form action before
// submitting. Form actions are attacker-controlled input.
func WithStaticValidator(fn func(string) error) StaticOption {
	return func(s *Static) { s.validate = fn }
}

// WithStaticLogger sets a custom logger.
func WithStaticLogger(l *slog.Logger) StaticOption {
	return func(s *Static) { s.logger = l }
}

// NewStatic creates a static replay backend.
func NewStatic(opts ...StaticOption) *Static {
	s := &Static{
		client:   &http.Client{Timeout: 20 * time.Second},
		ua:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		maxBytes: 10 << 20,
		validate: func(string) error { return nil },
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Static) Name() string { return "static" }

// Submit replays the form: POST sends the values form-encoded in the
// body, GET appends them to the action's query string. An implicit form
// has no fields to replay; it gets a loose post of the identity and
// message under their generic role names against the page itself, the
// last-resort swap after the scripted path. Non-2xx responses are
// returned for classification, not treated as transport errors.
func (s *Static) Submit(ctx context.Context, req *Request) (*Result, error) {
	if req.Form == nil {
		return nil, ErrNotReplayable
	}

	var httpReq *http.Request
	var err error
	if req.Form.Implicit {
		httpReq, err = s.buildLoose(ctx, req)
	} else {
		if req.Form.Action == "" {
			return nil, ErrNotReplayable
		}
		if err := s.validate(req.Form.Action); err != nil {
			return nil, fmt.Errorf("static: blocked action URL: %w", err)
		}
		httpReq, err = s.buildRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	fetch.SetBrowserHeaders(httpReq.Header, s.ua)
	httpReq.Header.Set("Referer", req.PageURL)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("static: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("static: read body: %w", err)
	}

	s.logger.Debug("static: submitted",
		"action", req.Form.Action, "method", req.Form.Method, "status", resp.StatusCode)

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

func (s *Static) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	if req.Form.Method == http.MethodGet {
		u, err := url.Parse(req.Form.Action)
		if err != nil {
			return nil, fmt.Errorf("static: parse action: %w", err)
		}
		u.RawQuery = req.Values.Encode()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("static: new request: %w", err)
		}
		return httpReq, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		req.Form.Action, strings.NewReader(req.Values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("static: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return httpReq, nil
}

// buildLoose posts the identity and message to the page URL under the
// generic role names loosely-validated handlers accept.
func (s *Static) buildLoose(ctx context.Context, req *Request) (*http.Request, error) {
	if err := s.validate(req.PageURL); err != nil {
		return nil, fmt.Errorf("static: blocked page URL: %w", err)
	}

	values := url.Values{}
	values.Set("name", req.Identity.Name)
	values.Set("email", req.Identity.Email)
	values.Set("message", req.Body)
	if req.Identity.Phone != "" {
		values.Set("phone", req.Identity.Phone)
	}
	if req.Subject != "" {
		values.Set("subject", req.Subject)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		req.PageURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("static: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return httpReq, nil
}
