package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AntiCaptcha is the Anti-Captcha provider: JSON createTask /
// getTaskResult with numeric task ids and errorId-based failures.
type AntiCaptcha struct {
	key    string
	base   string
	client *http.Client
}

// AntiCaptchaOption configures an AntiCaptcha provider.
type AntiCaptchaOption func(*AntiCaptcha)

// WithAntiCaptchaBaseURL overrides the API base URL (tests).
func WithAntiCaptchaBaseURL(base string) AntiCaptchaOption {
	return func(p *AntiCaptcha) { p.base = strings.TrimRight(base, "/") }
}

// WithAntiCaptchaClient sets a custom HTTP client.
func WithAntiCaptchaClient(c *http.Client) AntiCaptchaOption {
	return func(p *AntiCaptcha) { p.client = c }
}

// NewAntiCaptcha creates an Anti-Captcha provider with the given client key.
func NewAntiCaptcha(apiKey string, opts ...AntiCaptchaOption) *AntiCaptcha {
	p := &AntiCaptcha{
		key:    apiKey,
		base:   "https://api.anti-captcha.com",
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *AntiCaptcha) Name() string { return "anticaptcha" }

type antiCaptchaCreateResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type antiCaptchaResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Text               string `json:"text"`
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

func (p *AntiCaptcha) SubmitImage(ctx context.Context, image []byte) (string, error) {
	task := map[string]any{
		"type": "ImageToTextTask",
		"body": base64.StdEncoding.EncodeToString(image),
	}
	return p.createTask(ctx, task)
}

func (p *AntiCaptcha) SubmitInteractive(ctx context.Context, kind Kind, siteKey, pageURL string) (string, error) {
	taskType := "RecaptchaV2TaskProxyless"
	if kind == KindHCaptcha {
		taskType = "HCaptchaTaskProxyless"
	}
	task := map[string]any{
		"type":       taskType,
		"websiteURL": pageURL,
		"websiteKey": siteKey,
	}
	return p.createTask(ctx, task)
}

func (p *AntiCaptcha) createTask(ctx context.Context, task map[string]any) (string, error) {
	payload := map[string]any{"clientKey": p.key, "task": task}

	var out antiCaptchaCreateResponse
	if err := p.post(ctx, "/createTask", payload, &out); err != nil {
		return "", err
	}
	if out.ErrorID != 0 {
		return "", fmt.Errorf("anticaptcha: submit rejected: %s (%s)", out.ErrorCode, out.ErrorDescription)
	}
	return strconv.FormatInt(out.TaskID, 10), nil
}

func (p *AntiCaptcha) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	taskID, err := strconv.ParseInt(jobID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("anticaptcha: bad job id %q: %w", jobID, err)
	}
	payload := map[string]any{"clientKey": p.key, "taskId": taskID}

	var out antiCaptchaResultResponse
	if err := p.post(ctx, "/getTaskResult", payload, &out); err != nil {
		return nil, err
	}
	if out.ErrorID != 0 {
		return nil, fmt.Errorf("anticaptcha: %s (%s)", out.ErrorCode, out.ErrorDescription)
	}
	switch out.Status {
	case "ready":
		token := out.Solution.GRecaptchaResponse
		if token == "" {
			token = out.Solution.Text
		}
		return &PollResult{Ready: true, Token: token}, nil
	case "processing":
		return &PollResult{}, nil
	}
	return nil, fmt.Errorf("anticaptcha: unexpected status %q", out.Status)
}

func (p *AntiCaptcha) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("anticaptcha: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("anticaptcha: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("anticaptcha: do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anticaptcha: http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("anticaptcha: decode: %w", err)
	}
	return nil
}
