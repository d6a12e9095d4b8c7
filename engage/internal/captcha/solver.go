package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimedOut is returned when the poll bound is exhausted without a
// ready solution.
var ErrTimedOut = errors.New("captcha: solver timed out")

// PollResult is one poll of a submitted solving job. Ready=false with a
// nil error means "not ready yet, keep polling".
type PollResult struct {
	Ready bool
	Token string
}

// Provider is one external solving service. Both operations are
// submit-then-poll: Submit* returns an opaque job id, Poll checks it.
// Any non-nil Poll error is a hard failure that aborts solving; only a
// Ready=false result continues the loop.
type Provider interface {
	Name() string
	SubmitImage(ctx context.Context, image []byte) (jobID string, err error)
	SubmitInteractive(ctx context.Context, kind Kind, siteKey, pageURL string) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// Solver drives the poll loop over a Provider with fixed interval and
// per-challenge-kind bounds. One provider per attempt; backends are
// never mixed mid-solve.
type Solver struct {
	provider         Provider
	interval         time.Duration
	imagePolls       int
	interactivePolls int
	logger           *slog.Logger
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithInterval sets the poll interval. Default: 10s.
func WithInterval(d time.Duration) SolverOption {
	return func(s *Solver) { s.interval = d }
}

// WithImagePolls sets the image poll bound. Default: 30 (5 minutes).
func WithImagePolls(n int) SolverOption {
	return func(s *Solver) { s.imagePolls = n }
}

// WithInteractivePolls sets the interactive poll bound. Default: 60
// (10 minutes — interactive farms are slower than OCR).
func WithInteractivePolls(n int) SolverOption {
	return func(s *Solver) { s.interactivePolls = n }
}

// WithSolverLogger sets a custom logger.
func WithSolverLogger(l *slog.Logger) SolverOption {
	return func(s *Solver) { s.logger = l }
}

// NewSolver creates a Solver over the given provider.
func NewSolver(p Provider, opts ...SolverOption) *Solver {
	s := &Solver{
		provider:         p,
		interval:         10 * time.Second,
		imagePolls:       30,
		interactivePolls: 60,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SolveImage submits an image challenge and polls until solved, timed
// out, or hard-failed.
func (s *Solver) SolveImage(ctx context.Context, image []byte) (*Solution, error) {
	start := time.Now()
	jobID, err := s.provider.SubmitImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("captcha: submit image: %w", err)
	}
	token, err := s.poll(ctx, jobID, s.imagePolls)
	if err != nil {
		return nil, err
	}
	return &Solution{Kind: KindImage, Token: token, Elapsed: time.Since(start)}, nil
}

// SolveInteractive submits a ReCaptcha/HCaptcha challenge and polls
// until solved, timed out, or hard-failed.
func (s *Solver) SolveInteractive(ctx context.Context, kind Kind, siteKey, pageURL string) (*Solution, error) {
	start := time.Now()
	jobID, err := s.provider.SubmitInteractive(ctx, kind, siteKey, pageURL)
	if err != nil {
		return nil, fmt.Errorf("captcha: submit interactive: %w", err)
	}
	token, err := s.poll(ctx, jobID, s.interactivePolls)
	if err != nil {
		return nil, err
	}
	return &Solution{Kind: kind, Token: token, Elapsed: time.Since(start)}, nil
}

// poll sleeps before each check — solvers need seconds at minimum, so an
// immediate first poll is wasted — and runs at most bound checks. The
// sleep selects on ctx so a shutting-down caller is never held for the
// remainder of a 10-minute window.
func (s *Solver) poll(ctx context.Context, jobID string, bound int) (string, error) {
	for i := 0; i < bound; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.interval):
		}

		res, err := s.provider.Poll(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("captcha: poll %s: %w", s.provider.Name(), err)
		}
		if res.Ready {
			s.logger.Debug("captcha: solved", "provider", s.provider.Name(), "polls", i+1)
			return res.Token, nil
		}
	}
	return "", ErrTimedOut
}
