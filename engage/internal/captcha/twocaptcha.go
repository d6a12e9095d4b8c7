package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwoCaptcha is the 2Captcha provider: form-encoded in.php/res.php with
// json=1 responses.
type TwoCaptcha struct {
	key    string
	base   string
	client *http.Client
}

// TwoCaptchaOption configures a TwoCaptcha provider.
type TwoCaptchaOption func(*TwoCaptcha)

// WithTwoCaptchaBaseURL overrides the API base URL (tests).
func WithTwoCaptchaBaseURL(base string) TwoCaptchaOption {
	return func(p *TwoCaptcha) { p.base = strings.TrimRight(base, "/") }
}

// WithTwoCaptchaClient sets a custom HTTP client.
func WithTwoCaptchaClient(c *http.Client) TwoCaptchaOption {
	return func(p *TwoCaptcha) { p.client = c }
}

// NewTwoCaptcha creates a 2Captcha provider with the given API key.
func NewTwoCaptcha(apiKey string, opts ...TwoCaptchaOption) *TwoCaptcha {
	p := &TwoCaptcha{
		key:    apiKey,
		base:   "https://2captcha.com",
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *TwoCaptcha) Name() string { return "2captcha" }

// twoCaptchaResponse is the shared in.php/res.php JSON shape. Request
// doubles as job id, token, or error code depending on status.
type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (p *TwoCaptcha) SubmitImage(ctx context.Context, image []byte) (string, error) {
	form := url.Values{
		"key":    {p.key},
		"method": {"base64"},
		"body":   {base64.StdEncoding.EncodeToString(image)},
		"json":   {"1"},
	}
	return p.submit(ctx, form)
}

func (p *TwoCaptcha) SubmitInteractive(ctx context.Context, kind Kind, siteKey, pageURL string) (string, error) {
	form := url.Values{
		"key":     {p.key},
		"pageurl": {pageURL},
		"json":    {"1"},
	}
	switch kind {
	case KindHCaptcha:
		form.Set("method", "hcaptcha")
		form.Set("sitekey", siteKey)
	default:
		form.Set("method", "userrecaptcha")
		form.Set("googlekey", siteKey)
	}
	return p.submit(ctx, form)
}

func (p *TwoCaptcha) submit(ctx context.Context, form url.Values) (string, error) {
	res, err := p.do(ctx, http.MethodPost, p.base+"/in.php", form)
	if err != nil {
		return "", err
	}
	if res.Status != 1 {
		return "", fmt.Errorf("2captcha: submit rejected: %s", res.Request)
	}
	return res.Request, nil
}

func (p *TwoCaptcha) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	q := url.Values{
		"key":    {p.key},
		"action": {"get"},
		"id":     {jobID},
		"json":   {"1"},
	}
	res, err := p.do(ctx, http.MethodGet, p.base+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if res.Status == 1 {
		return &PollResult{Ready: true, Token: res.Request}, nil
	}
	if res.Request == "CAPCHA_NOT_READY" {
		return &PollResult{}, nil
	}
	return nil, fmt.Errorf("2captcha: %s", res.Request)
}

func (p *TwoCaptcha) do(ctx context.Context, method, endpoint string, form url.Values) (*twoCaptchaResponse, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("2captcha: new request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("2captcha: do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("2captcha: http %d", resp.StatusCode)
	}

	var out twoCaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("2captcha: decode: %w", err)
	}
	return &out, nil
}
