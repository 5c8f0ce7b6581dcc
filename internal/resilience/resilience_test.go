package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pronunciapa/pronunciapa/internal/resilience"
)

var errTransient = errors.New("transient")

func TestRetry_SucceedsSecondAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := resilience.Retry(context.Background(), errTransient, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != 42 || calls != 2 {
		t.Errorf("got %d after %d calls, want 42 after 2", got, calls)
	}
}

func TestRetry_OnlyOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := resilience.Retry(context.Background(), errTransient, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if err == nil {
		t.Fatal("Retry: err = nil, want failure after second attempt")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want exactly 2", calls)
	}
}

func TestRetry_NonRetryableNotRetried(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal")
	calls := 0
	_, err := resilience.Retry(context.Background(), errTransient, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want fatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})
	fail := errors.New("boom")

	for range 2 {
		if !b.Allow() {
			t.Fatal("Allow = false before threshold")
		}
		b.Record(fail)
	}
	if b.Allow() {
		t.Error("Allow = true after threshold, want open breaker")
	}
}

func TestBreaker_ProbeAfterTimeout(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Millisecond})
	b.Record(errors.New("boom"))
	if b.Allow() {
		t.Fatal("Allow = true immediately after opening")
	}

	time.Sleep(5 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("Allow = false after reset timeout, want probe")
	}
	b.Record(nil)
	if !b.Allow() {
		t.Error("Allow = false after successful probe, want closed breaker")
	}
}

func TestChain_FallsBack(t *testing.T) {
	t.Parallel()

	type provider struct{ id string }
	chain := resilience.NewChain("primary", &provider{id: "primary"})
	chain.Add("backup", &provider{id: "backup"})

	got, name, err := resilience.Execute(chain, func(p *provider) (string, error) {
		if p.id == "primary" {
			return "", errors.New("primary down")
		}
		return p.id, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "backup" || name != "backup" {
		t.Errorf("Execute = (%q, %q), want backup", got, name)
	}
}

func TestChain_AllFail(t *testing.T) {
	t.Parallel()

	chain := resilience.NewChain("only", struct{}{})
	_, _, err := resilience.Execute(chain, func(struct{}) (int, error) {
		return 0, errors.New("down")
	})
	if err == nil {
		t.Error("Execute: err = nil, want all-failed error")
	}
}
