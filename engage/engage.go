// Package engage submits outreach messages through website contact
// forms. The engine runs one attempt end to end: rate-limit, fetch,
// locate the form, map its fields, resolve any captcha, submit through
// the backend chain, and classify the server's response. Negative
// results are values (Outcome), never errors; errors are reserved for
// bad input and cancelled contexts.
package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/formreach/formreach/engage/internal/browser"
	"github.com/formreach/formreach/engage/internal/captcha"
	"github.com/formreach/formreach/engage/internal/classify"
	"github.com/formreach/formreach/engage/internal/fetch"
	"github.com/formreach/formreach/engage/internal/htmlform"
	"github.com/formreach/formreach/engage/internal/ratelimit"
	"github.com/formreach/formreach/engage/internal/submit"
	"github.com/formreach/formreach/engage/internal/urlcheck"
	"github.com/formreach/formreach/idgen"
)

// excerptMaxRunes caps the markdown excerpt carried on an outcome.
const excerptMaxRunes = 600

// Engine runs engagement attempts. Safe for concurrent use; the rate
// limiter serializes outbound pressure across goroutines.
type Engine struct {
	cfg      *Config
	logger   *slog.Logger
	limiter  *ratelimit.Limiter
	fetcher  *fetch.Fetcher
	solver   *captcha.Solver // nil: no provider configured
	static   submit.Backend
	scripted submit.Backend // nil: browser disabled
	browsers *browser.Manager
	conv     *converter.Converter
	identity htmlform.Identity
	newID    idgen.Generator
	validate func(string) error

	mu     sync.Mutex
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProvider overrides the captcha solving provider built from
// configuration. Tests inject stubs here.
func WithProvider(p captcha.Provider) Option {
	return func(e *Engine) {
		e.solver = captcha.NewSolver(p,
			captcha.WithInterval(e.cfg.Solver.PollInterval),
			captcha.WithImagePolls(e.cfg.Solver.ImagePolls),
			captcha.WithInteractivePolls(e.cfg.Solver.InteractivePolls))
	}
}

// WithStaticBackend overrides the static submission backend.
func WithStaticBackend(b submit.Backend) Option {
	return func(e *Engine) { e.static = b }
}

// WithScriptedBackend overrides the scripted submission backend.
func WithScriptedBackend(b submit.Backend) Option {
	return func(e *Engine) { e.scripted = b }
}

// WithURLValidator overrides the URL safety check. Tests use it to
// allow loopback targets.
func WithURLValidator(fn func(string) error) Option {
	return func(e *Engine) { e.validate = fn }
}

// WithIDFunc overrides attempt ID generation.
func WithIDFunc(fn idgen.Generator) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an Engine from configuration. A nil cfg uses defaults.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = defaultConfig()
	} else {
		c := *cfg
		c.applyDefaults()
		cfg = &c
	}

	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		limiter:  ratelimit.New(cfg.Limits.GlobalQPS, cfg.Limits.PerDomainQPS),
		newID:    idgen.Attempt,
		validate: urlcheck.Validate,
		identity: htmlform.Identity{
			Name:    cfg.Identity.Name,
			Email:   cfg.Identity.Email,
			Phone:   cfg.Identity.Phone,
			Company: cfg.Identity.Company,
			Website: cfg.Identity.Website,
		},
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
	for _, o := range opts {
		o(e)
	}

	// One cookie-jar client shared between page fetch and static replay
	// so session cookies issued with the page accompany the submission.
	if e.fetcher == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("engage: cookie jar: %w", err)
		}
		client := &http.Client{Jar: jar, Timeout: cfg.Fetch.Timeout}
		e.fetcher = fetch.New(
			fetch.WithClient(client),
			fetch.WithUserAgent(cfg.Fetch.UserAgent),
			fetch.WithMaxBytes(cfg.Fetch.MaxBytes),
			fetch.WithValidator(e.validate),
			fetch.WithLogger(e.logger),
		)
		if e.static == nil {
			e.static = submit.NewStatic(
				submit.WithStaticClient(client),
				submit.WithStaticUserAgent(cfg.Fetch.UserAgent),
				submit.WithStaticValidator(e.validate),
				submit.WithStaticLogger(e.logger),
			)
		}
	}

	if e.scripted == nil && !cfg.Browser.Disabled {
		e.browsers = browser.NewManager(browser.Config{
			Remote:           cfg.Browser.Remote,
			NavTimeout:       cfg.Browser.NavTimeout,
			SettleWait:       cfg.Browser.SettleWait,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           e.logger,
		})
		e.scripted = submit.NewScripted(e.browsers, submit.WithScriptedLogger(e.logger))
	}

	if e.solver == nil && cfg.Solver.Provider != "" {
		p, err := newProvider(&cfg.Solver)
		if err != nil {
			return nil, err
		}
		WithProvider(p)(e)
	}

	return e, nil
}

// newProvider maps a configured provider name to its implementation.
func newProvider(cfg *SolverConfig) (captcha.Provider, error) {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	switch cfg.Provider {
	case "2captcha":
		opts := []captcha.TwoCaptchaOption{captcha.WithTwoCaptchaClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, captcha.WithTwoCaptchaBaseURL(cfg.BaseURL))
		}
		return captcha.NewTwoCaptcha(cfg.APIKey, opts...), nil
	case "anticaptcha":
		opts := []captcha.AntiCaptchaOption{captcha.WithAntiCaptchaClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, captcha.WithAntiCaptchaBaseURL(cfg.BaseURL))
		}
		return captcha.NewAntiCaptcha(cfg.APIKey, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// Close releases the engine's resources, shutting down the browser if
// one was launched. Attempts started after Close fail with
// ErrEngineClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if e.browsers != nil {
		return e.browsers.Close()
	}
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Engage runs one full attempt against a specific page URL. The
// returned Outcome carries the verdict; an error is returned only for
// invalid input, a closed engine, or a cancelled context.
func (e *Engine) Engage(ctx context.Context, target Target, msg Message) (*Outcome, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, ErrMissingMessage
	}
	if target.URL == "" || target.Domain == "" {
		return nil, ErrInvalidTarget
	}
	if err := e.validate(target.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	start := time.Now()
	out := &Outcome{
		AttemptID: e.newID(),
		URL:       target.URL,
		Domain:    target.Domain,
	}
	log := e.logger.With("attempt_id", out.AttemptID, "domain", target.Domain)

	defer func() {
		out.ElapsedMs = time.Since(start).Milliseconds()
	}()

	if err := e.limiter.WaitForDomain(ctx, target.Domain); err != nil {
		return nil, err
	}

	res, err := e.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Info("engage: fetch failed", "url", target.URL, "error", err)
		out.Failure = FailFetch
		out.Signal = err.Error()
		return out, nil
	}

	forms, err := htmlform.Parse(res.Body, res.FinalURL)
	if err != nil {
		out.Failure = FailNoForm
		out.Signal = err.Error()
		return out, nil
	}
	form, ok := htmlform.Locate(forms, res.Body, res.FinalURL)
	if !ok {
		log.Info("engage: no form found", "url", target.URL)
		out.Failure = FailNoForm
		return out, nil
	}

	values := url.Values{}
	if !form.Implicit {
		values = htmlform.Fill(form, e.identity, msg.Subject, msg.Body)
	}

	// Resolve any challenge before submitting: an unsolved form is a
	// guaranteed rejection, but the backends still run so the outcome
	// records what was tried.
	var solution *captcha.Solution
	var solveErr error
	ch := captcha.Detect(res.Body)
	if ch != nil {
		out.Challenge = string(ch.Kind)
		solution, solveErr = e.solve(ctx, ch, res, values)
		if solveErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Info("engage: captcha solve failed", "kind", ch.Kind, "error", solveErr)
		}
	}

	req := &submit.Request{
		PageURL:   res.FinalURL,
		Form:      form,
		Values:    values,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Identity:  e.identity,
		Challenge: ch,
		Solution:  solution,
		Solve:     e.solveFn(res.FinalURL),
	}

	verdict, used, lastErr := e.runBackends(ctx, req, form, out, log)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.finish(out, verdict, used, solveErr, lastErr)
	log.Info("engage: attempt finished",
		"submitted", out.Submitted, "backend", out.Backend,
		"failure", out.Failure, "signal", out.Signal, "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// EngageSite probes a site for contact pages and engages the first
// candidate that submits. Candidates after the first are tried only
// when the previous one did not submit.
func (e *Engine) EngageSite(ctx context.Context, target Target, msg Message) (*Outcome, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, ErrMissingMessage
	}
	if err := e.validate(target.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	if err := e.limiter.WaitForDomain(ctx, target.Domain); err != nil {
		return nil, err
	}
	candidates, err := e.fetcher.ProbeContactPages(ctx, target.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Outcome{
			AttemptID: e.newID(),
			URL:       target.URL,
			Domain:    target.Domain,
			Failure:   FailFetch,
			Signal:    err.Error(),
		}, nil
	}
	if len(candidates) == 0 {
		return &Outcome{
			AttemptID: e.newID(),
			URL:       target.URL,
			Domain:    target.Domain,
			Failure:   FailNoForm,
			Signal:    "no contact page candidates",
		}, nil
	}

	var last *Outcome
	for _, candidate := range candidates {
		out, err := e.Engage(ctx, Target{URL: candidate, Domain: target.Domain}, msg)
		if err != nil {
			return nil, err
		}
		if out.Submitted {
			return out, nil
		}
		last = out
	}
	return last, nil
}

// runBackends executes the submission chain: static replay first with
// the scripted browser as fallback, or scripted first when the form was
// located only implicitly — the live DOM is the only place a
// script-rendered form can appear, and the static leg then retries once
// with a loose post against the page itself. Each backend's response is
// classified; the chain stops at the first accepted submission.
func (e *Engine) runBackends(ctx context.Context, req *submit.Request, form *htmlform.Form, out *Outcome, log *slog.Logger) (*classify.Verdict, Backend, error) {
	var chain []submit.Backend
	if form.Implicit {
		chain = []submit.Backend{e.scripted, e.static}
	} else {
		chain = []submit.Backend{e.static, e.scripted}
	}

	var verdict *classify.Verdict
	var used Backend
	var lastErr error
	for _, b := range chain {
		if b == nil {
			continue
		}
		if ctx.Err() != nil {
			return verdict, used, ctx.Err()
		}
		name := Backend(b.Name())
		out.Tried = append(out.Tried, name)

		result, err := b.Submit(ctx, req)
		if err != nil {
			log.Info("engage: backend failed", "backend", name, "error", err)
			lastErr = err
			continue
		}

		v := classify.Page(result.StatusCode, result.Body, result.FinalURL)
		log.Debug("engage: classified",
			"backend", name, "submitted", v.Submitted, "signal", v.Signal)

		// Keep the first verdict with its evidence; overwrite only on a
		// later success.
		if verdict == nil || v.Submitted {
			verdict = &v
			used = name
			out.Excerpt = e.excerpt(result.Body)
		}
		if v.Submitted {
			break
		}
	}
	return verdict, used, lastErr
}

// finish folds the chain's evidence into the outcome. Failure
// precedence: a captcha failure outranks a rejected submission (the
// rejection is a symptom), and backend_unavailable applies only when no
// backend produced a response at all.
func (e *Engine) finish(out *Outcome, verdict *classify.Verdict, used Backend, solveErr, lastErr error) {
	if verdict != nil && verdict.Submitted {
		out.Submitted = true
		out.Backend = used
		out.Signal = verdict.Signal
		return
	}

	if solveErr == nil && lastErr != nil && errors.Is(lastErr, submit.ErrSolve) {
		solveErr = lastErr
	}
	switch {
	case solveErr != nil:
		if errors.Is(solveErr, captcha.ErrTimedOut) {
			out.Failure = FailCaptchaTimeout
		} else {
			out.Failure = FailCaptchaSolver
		}
		out.Signal = solveErr.Error()
	case verdict != nil:
		out.Failure = FailRejected
		out.Backend = used
		out.Signal = verdict.Signal
	case lastErr != nil && errors.Is(lastErr, submit.ErrBrowserUnavailable):
		out.Failure = FailBackend
		out.Signal = lastErr.Error()
	case lastErr != nil:
		out.Failure = FailRejected
		out.Signal = lastErr.Error()
	default:
		out.Failure = FailBackend
		out.Signal = "no backend available"
	}
}

// solve resolves a detected challenge and merges the answer into the
// field values. Interactive kinds go to the solver with the page URL;
// image kinds are downloaded and OCR-solved into the page's captcha
// answer field. Unknown kinds cannot be solved.
func (e *Engine) solve(ctx context.Context, ch *captcha.Challenge, page *fetch.Result, values url.Values) (*captcha.Solution, error) {
	if e.solver == nil {
		return nil, fmt.Errorf("challenge %s detected but no solver configured", ch.Kind)
	}

	switch {
	case ch.Interactive():
		sol, err := e.solver.SolveInteractive(ctx, ch.Kind, ch.SiteKey, page.FinalURL)
		if err != nil {
			return nil, err
		}
		values.Set(ch.TokenField(), sol.Token)
		return sol, nil

	case ch.Kind == captcha.KindImage:
		field := htmlform.CaptchaInputName(page.Body)
		if field == "" {
			return nil, fmt.Errorf("image challenge with no answer field")
		}
		imgURL, err := resolveRef(page.FinalURL, ch.ImageSrc)
		if err != nil {
			return nil, fmt.Errorf("resolve challenge image URL: %w", err)
		}
		img, err := e.fetcher.FetchBytes(ctx, imgURL)
		if err != nil {
			return nil, fmt.Errorf("fetch challenge image: %w", err)
		}
		sol, err := e.solver.SolveImage(ctx, img)
		if err != nil {
			return nil, err
		}
		values.Set(field, sol.Token)
		return sol, nil
	}

	return nil, fmt.Errorf("challenge kind %s cannot be solved", ch.Kind)
}

// solveFn is the callback the scripted backend uses for challenges
// that only appear in the live DOM.
func (e *Engine) solveFn(pageURL string) submit.SolveFn {
	if e.solver == nil {
		return nil
	}
	return func(ctx context.Context, ch *captcha.Challenge) (*captcha.Solution, error) {
		if !ch.Interactive() {
			return nil, fmt.Errorf("challenge kind %s cannot be solved in-page", ch.Kind)
		}
		return e.solver.SolveInteractive(ctx, ch.Kind, ch.SiteKey, pageURL)
	}
}

// excerpt renders the response page as markdown, capped for storage.
// Pages the converter chokes on fall back to raw text.
func (e *Engine) excerpt(body []byte) string {
	text, err := e.conv.ConvertString(string(body))
	if err != nil || strings.TrimSpace(text) == "" {
		text = string(body)
	}
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > excerptMaxRunes {
		return string(runes[:excerptMaxRunes])
	}
	return text
}

func resolveRef(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}
