// Package submit carries the two submission backends: static HTTP
// replay and the scripted browser. Both take the same prepared request
// and return the server's response for classification.
package submit

import (
	"context"
	"errors"
	"net/url"

	"github.com/formreach/formreach/engage/internal/captcha"
	"github.com/formreach/formreach/engage/internal/htmlform"
)

var (
	// ErrNotReplayable marks a form the static backend cannot submit:
	// an implicit form has no action or fields to replay.
	ErrNotReplayable = errors.New("submit: form not replayable")

	// ErrBrowserUnavailable marks a scripted attempt that never reached
	// the page because the browser could not be launched or attached.
	ErrBrowserUnavailable = errors.New("submit: browser unavailable")

	// ErrSolve wraps a solver failure raised while handling a challenge
	// that only appeared in the live DOM.
	ErrSolve = errors.New("submit: captcha solve failed")
)

// SolveFn resolves a challenge discovered mid-submission. The scripted
// backend calls it when the live DOM carries a challenge the static
// parse never saw.
type SolveFn func(ctx context.Context, ch *captcha.Challenge) (*captcha.Solution, error)

// Request is one prepared submission: the located form, the field
// values built for it, and any challenge already solved.
type Request struct {
	// PageURL is the page the form was found on; it becomes the Referer
	// for static replay and the navigation target for scripted runs.
	PageURL string

	Form   *htmlform.Form
	Values url.Values

	// Subject, Body, and Identity are the raw fill material. The
	// scripted backend rebuilds its fill map from these against the
	// live DOM, where the form may differ from the fetched markup; the
	// static backend uses them for the loose post an implicit form
	// gets.
	Subject  string
	Body     string
	Identity htmlform.Identity

	// Challenge and Solution describe a challenge detected before
	// submission, if any. A solved token is already merged into Values.
	Challenge *captcha.Challenge
	Solution  *captcha.Solution

	// Solve handles challenges that surface only in the live DOM.
	// Nil means no solver is configured.
	Solve SolveFn
}

// Result is the server's response to a submission attempt.
type Result struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

// Backend submits a prepared request one way.
type Backend interface {
	Name() string
	Submit(ctx context.Context, req *Request) (*Result, error)
}
