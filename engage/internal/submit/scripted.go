package submit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/formreach/formreach/engage/internal/browser"
	"github.com/formreach/formreach/engage/internal/captcha"
	"github.com/formreach/formreach/engage/internal/htmlform"
)

// submitControls are the CSS selectors tried, in order, to find the
// form's submit control in the live DOM.
var submitControls = []string{
	`input[type="submit"]`,
	`button[type="submit"]`,
	`input[value*="Send" i]`,
	`input[value*="Submit" i]`,
}

// submitButtonText matches buttons whose label, not type, marks them as
// the submit control.
const submitButtonText = `/send|submit|contact/i`

// elementWait bounds each individual element lookup; the DOM has
// already settled, so a missing element stays missing.
const elementWait = 3 * time.Second

// Scripted drives a real browser through the form: navigate, let
// scripts render, re-locate the form against the live DOM, fill it
// field by field, and click submit. It is the only backend that can
// handle script-rendered forms and live challenge widgets.
type Scripted struct {
	mgr    *browser.Manager
	logger *slog.Logger
}

// ScriptedOption configures a Scripted backend.
type ScriptedOption func(*Scripted)

// WithScriptedLogger sets a custom logger.
func WithScriptedLogger(l *slog.Logger) ScriptedOption {
	return func(s *Scripted) { s.logger = l }
}

// NewScripted creates a scripted backend on the given browser manager.
func NewScripted(mgr *browser.Manager, opts ...ScriptedOption) *Scripted {
	s := &Scripted{mgr: mgr, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scripted) Name() string { return "scripted" }

// Submit runs the full browser flow. The returned result carries the
// post-submission live DOM and page URL; the status is reported as 200
// because a browser exposes no response status for the click — the
// classifier works from body and URL evidence instead.
func (s *Scripted) Submit(ctx context.Context, req *Request) (*Result, error) {
	tab, err := browser.OpenTab(ctx, s.mgr, req.PageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrowserUnavailable, err)
	}
	defer tab.Close()

	markup, err := tab.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("scripted: snapshot: %w", err)
	}

	// Re-locate against the live DOM: script-rendered forms exist here
	// even when the static fetch saw none.
	forms, err := htmlform.Parse(markup, tab.URL())
	if err != nil {
		return nil, fmt.Errorf("scripted: parse live DOM: %w", err)
	}
	form, ok := htmlform.Locate(forms, markup, tab.URL())
	if !ok || form.Implicit {
		return nil, fmt.Errorf("scripted: no form in live DOM")
	}

	if err := s.handleChallenge(ctx, tab, req, markup); err != nil {
		return nil, err
	}

	// Build the fill map against the live form, not the fetched markup:
	// for an implicit candidate the static parse saw no fields at all,
	// and a script-rendered form can differ from what was fetched.
	// Values prepared upstream (solved captcha answers) win on overlap.
	values := htmlform.Fill(form, req.Identity, req.Subject, req.Body)
	for key := range req.Values {
		if v := req.Values.Get(key); v != "" {
			values.Set(key, v)
		}
	}

	if err := s.fillFields(tab, form, values); err != nil {
		return nil, err
	}

	if err := s.clickSubmit(tab); err != nil {
		return nil, err
	}

	// The click may trigger a navigation, an AJAX swap, or nothing.
	// Wait for load best-effort, then let the response render.
	navCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := tab.Page.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Debug("scripted: post-submit wait load", "error", err)
	}
	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err := tab.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("scripted: final snapshot: %w", err)
	}

	s.logger.Debug("scripted: submitted", "url", req.PageURL, "final_url", tab.URL())

	return &Result{StatusCode: 200, Body: body, FinalURL: tab.URL()}, nil
}

// handleChallenge deals with the challenge visible in the live DOM. A
// token already solved upstream is injected; a challenge that only
// appeared after rendering is solved via the request's Solve callback.
func (s *Scripted) handleChallenge(ctx context.Context, tab *browser.Tab, req *Request, markup []byte) error {
	sol := req.Solution
	ch := captcha.Detect(markup)
	if ch == nil {
		return nil
	}
	if !ch.Interactive() {
		// Image and unknown challenges carry no injectable token; the
		// answer, if any, is already in the field values.
		return nil
	}

	if sol == nil {
		if req.Solve == nil {
			return fmt.Errorf("%w: challenge %s with no solver", ErrSolve, ch.Kind)
		}
		var err error
		sol, err = req.Solve(ctx, ch)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSolve, err)
		}
	}

	return s.injectToken(tab, ch.TokenField(), sol.Token)
}

// injectToken writes the solver's token into the vendor response field,
// creating it when the widget has not rendered one yet.
func (s *Scripted) injectToken(tab *browser.Tab, field, token string) error {
	_, err := tab.Page.Eval(`(name, token) => {
		let el = document.querySelector('textarea[name="' + name + '"], input[name="' + name + '"]');
		if (!el) {
			el = document.createElement('textarea');
			el.name = name;
			el.style.display = 'none';
			const form = document.querySelector('form') || document.body;
			form.appendChild(el);
		}
		el.value = token;
	}`, field, token)
	if err != nil {
		return fmt.Errorf("scripted: inject token: %w", err)
	}
	return nil
}

// fillFields types the built values into the live form. Only text-like
// inputs and textareas are touched; checkboxes, radios, selects, and
// hidden fields keep the state the page rendered them with.
func (s *Scripted) fillFields(tab *browser.Tab, form *htmlform.Form, values url.Values) error {
	var filled int
	for i := range form.Fields {
		fld := &form.Fields[i]
		switch fld.Kind {
		case htmlform.KindText, htmlform.KindEmail, htmlform.KindTel, htmlform.KindTextarea:
		default:
			continue
		}
		if !fld.Visible || fld.Disabled {
			continue
		}
		value := values.Get(fld.Name)
		if value == "" {
			continue
		}

		el, err := tab.Page.Timeout(elementWait).Element(fmt.Sprintf(`[name=%q]`, fld.Name))
		if err != nil {
			s.logger.Debug("scripted: field not found", "name", fld.Name, "error", err)
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.logger.Debug("scripted: field click", "name", fld.Name, "error", err)
			continue
		}
		// Select-all so typing replaces any prefilled value.
		_ = el.SelectAllText()
		if err := el.Input(value); err != nil {
			return fmt.Errorf("scripted: fill %s: %w", fld.Name, err)
		}
		filled++
	}
	if filled == 0 {
		return fmt.Errorf("scripted: no fillable fields matched")
	}
	return nil
}

// clickSubmit finds the form's submit control by selector priority,
// falling back to button-text matching, and clicks it.
func (s *Scripted) clickSubmit(tab *browser.Tab) error {
	var el *rod.Element
	var err error
	for _, sel := range submitControls {
		el, err = tab.Page.Timeout(elementWait).Element(sel)
		if err == nil {
			break
		}
	}
	if el == nil {
		el, err = tab.Page.Timeout(elementWait).ElementR("button", submitButtonText)
	}
	if err != nil || el == nil {
		return fmt.Errorf("scripted: no submit control found")
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("scripted: click submit: %w", err)
	}
	return nil
}
