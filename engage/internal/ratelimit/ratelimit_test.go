package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWait_EnforcesGlobalSpacing(t *testing.T) {
	// WHAT: 5 back-to-back Wait calls at 2 qps take at least 2.0s.
	// WHY: The global ceiling is a hard floor on inter-request spacing.
	l := New(2, 100)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 2*time.Second {
		t.Errorf("5 waits at 2 qps took %v, want >= 2s", elapsed)
	}
}

func TestWaitForDomain_IndependentDomains(t *testing.T) {
	// WHAT: Interleaved waits for two domains do not serialize on each
	// other's per-domain spacing.
	// WHY: Per-domain state is keyed; only same-domain calls queue.
	l := New(1000, 2)

	start := time.Now()
	// Two calls per domain: the first of each is immediate, the second
	// waits ~500ms on its own domain clock. Serialized cross-domain
	// blocking would push this past ~1.5s.
	for i := 0; i < 2; i++ {
		if err := l.WaitForDomain(context.Background(), "a.example"); err != nil {
			t.Fatalf("domain a: %v", err)
		}
		if err := l.WaitForDomain(context.Background(), "b.example"); err != nil {
			t.Fatalf("domain b: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed > 1200*time.Millisecond {
		t.Errorf("interleaved domains took %v, want well under 1.2s", elapsed)
	}
}

func TestWaitForDomain_SameDomainSerializes(t *testing.T) {
	// WHAT: Two calls to the same domain are spaced by 1/qps.
	// WHY: The per-domain ceiling protects individual sites.
	l := New(1000, 4)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.WaitForDomain(context.Background(), "only.example"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 500*time.Millisecond {
		t.Errorf("3 same-domain waits at 4 qps took %v, want >= 500ms", elapsed)
	}
}

func TestWait_ContextCancel(t *testing.T) {
	// WHAT: A canceled context aborts the wait with an error.
	// WHY: Shutdown must not hang on pacing delays.
	l := New(0.1, 0.1) // 10s spacing

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error on second wait")
	}
}

func TestWaitForDomain_ConcurrentAccess(t *testing.T) {
	// WHAT: Concurrent waiters across many domains race cleanly.
	// WHY: The lazy per-domain map is shared state under a mutex.
	l := New(1000, 1000)

	var wg sync.WaitGroup
	domains := []string{"a", "b", "c", "d"}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.WaitForDomain(context.Background(), domains[i%len(domains)])
		}(i)
	}
	wg.Wait()
}
