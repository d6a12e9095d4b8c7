package captcha

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubProvider scripts Poll behavior: not-ready until readyAt, then a
// token; or a hard error on every poll when failErr is set.
type stubProvider struct {
	readyAt int
	token   string
	failErr error
	polls   int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) SubmitImage(context.Context, []byte) (string, error) {
	return "job-1", nil
}

func (s *stubProvider) SubmitInteractive(context.Context, Kind, string, string) (string, error) {
	return "job-1", nil
}

func (s *stubProvider) Poll(context.Context, string) (*PollResult, error) {
	s.polls++
	if s.failErr != nil {
		return nil, s.failErr
	}
	if s.polls >= s.readyAt {
		return &PollResult{Ready: true, Token: s.token}, nil
	}
	return &PollResult{}, nil
}

func TestSolveImage_ReadyBeforeBound(t *testing.T) {
	// WHAT: A provider that reports not-ready for 4 polls and ready on
	// the 5th yields the token.
	// WHY: "Not ready" is a reason to continue, never a failure.
	p := &stubProvider{readyAt: 5, token: "answer42"}
	s := NewSolver(p, WithInterval(time.Millisecond), WithImagePolls(30))

	sol, err := s.SolveImage(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Token != "answer42" || sol.Kind != KindImage {
		t.Errorf("solution: %+v", sol)
	}
	if p.polls != 5 {
		t.Errorf("polls: got %d, want 5", p.polls)
	}
}

func TestSolve_TimedOutAtExactBound(t *testing.T) {
	// WHAT: A never-ready provider times out after exactly the configured
	// bound, not earlier or later.
	p := &stubProvider{readyAt: 1 << 30}
	s := NewSolver(p, WithInterval(time.Millisecond), WithImagePolls(7))

	_, err := s.SolveImage(context.Background(), nil)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err: %v, want ErrTimedOut", err)
	}
	if p.polls != 7 {
		t.Errorf("polls: got %d, want exactly 7", p.polls)
	}
}

func TestSolve_HardErrorAbortsImmediately(t *testing.T) {
	// WHAT: Any non-"not ready" poll response aborts solving on the spot.
	// WHY: No partial credit — a rejected job never recovers.
	hard := errors.New("ERROR_CAPTCHA_UNSOLVABLE")
	p := &stubProvider{failErr: hard}
	s := NewSolver(p, WithInterval(time.Millisecond), WithInteractivePolls(60))

	_, err := s.SolveInteractive(context.Background(), KindRecaptchaV2, "key", "https://x.example/")
	if !errors.Is(err, hard) {
		t.Fatalf("err: %v, want wrapped hard error", err)
	}
	if p.polls != 1 {
		t.Errorf("polls: got %d, want 1", p.polls)
	}
}

func TestSolve_ContextCancelDuringPollSleep(t *testing.T) {
	// WHAT: Cancelling the context releases a solver mid-interval.
	// WHY: A 10-minute poll window must not block process shutdown.
	p := &stubProvider{readyAt: 1 << 30}
	s := NewSolver(p, WithInterval(time.Hour), WithImagePolls(30))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.SolveImage(ctx, nil)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err: %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("solver did not release on context cancel")
	}
}

func TestSolveInteractive_CarriesKind(t *testing.T) {
	// WHAT: The solution reports the challenge kind it resolved.
	p := &stubProvider{readyAt: 1, token: "tok"}
	s := NewSolver(p, WithInterval(time.Millisecond))

	sol, err := s.SolveInteractive(context.Background(), KindHCaptcha, "key", "https://x.example/")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Kind != KindHCaptcha {
		t.Errorf("kind: got %q", sol.Kind)
	}
}
