package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func failing(n int, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= n {
			return "", errTransient
		}
		return "ok", nil
	}
}

func TestDoValue_SucceedsAfterTransientFailures(t *testing.T) {
	for n := 0; n < 4; n++ {
		rec := &recorder{}
		p := Policy{Attempts: 4, Delay: time.Second, Backoff: 2, Retryable: On(errTransient), Sleep: rec.sleep}

		calls := 0
		v, err := DoValue(context.Background(), p, failing(n, &calls))
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if v != "ok" {
			t.Errorf(`n=%d: value should be "ok", but %q`, n, v)
		}
		if calls != n+1 {
			t.Errorf("n=%d: calls should be %d, but %d", n, n+1, calls)
		}
		if len(rec.delays) != n {
			t.Errorf("n=%d: sleeps should be %d, but %d", n, n, len(rec.delays))
		}
	}
}

func TestDoValue_Exhausted(t *testing.T) {
	for _, n := range []int{4, 5, 100} {
		rec := &recorder{}
		p := Policy{Attempts: 4, Delay: 3 * time.Second, Backoff: 2, Retryable: On(errTransient), Sleep: rec.sleep}

		calls := 0
		_, err := DoValue(context.Background(), p, failing(n, &calls))
		if !errors.Is(err, errTransient) {
			t.Fatalf("n=%d: error should be the transient error, but %v", n, err)
		}
		if calls != 4 {
			t.Errorf("n=%d: calls should be 4, but %d", n, calls)
		}

		want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second}
		if len(rec.delays) != len(want) {
			t.Fatalf("n=%d: delays should be %v, but %v", n, want, rec.delays)
		}
		for i := range want {
			if rec.delays[i] != want[i] {
				t.Errorf("n=%d: delay %d should be %s, but %s", n, i, want[i], rec.delays[i])
			}
		}
	}
}

func TestDo_NonMatchingErrorPropagates(t *testing.T) {
	rec := &recorder{}
	p := Policy{Attempts: 6, Retryable: On(errTransient), Sleep: rec.sleep}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return errFatal
	})

	if !errors.Is(err, errFatal) {
		t.Errorf("error should be fatal, but %v", err)
	}
	if calls != 1 {
		t.Errorf("calls should be 1, but %d", calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("no sleep expected, but %v", rec.delays)
	}
}

func TestDo_ConstantDelay(t *testing.T) {
	rec := &recorder{}
	p := Policy{Attempts: 6, Delay: 10 * time.Second, Backoff: 1, Sleep: rec.sleep}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total time.Duration
	for _, d := range rec.delays {
		total += d
	}
	if total != 20*time.Second {
		t.Errorf("total sleep should be 20s, but %s", total)
	}
}

func TestDo_ContextCanceledWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{Attempts: 3, Delay: time.Hour}
	err := Do(ctx, p, func(context.Context) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should be context.Canceled, but %v", err)
	}
}

type codeError struct{ code int }

func (e *codeError) Error() string { return "code error" }

func TestPredicates(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &codeError{code: 421})

	if !OnType[*codeError]()(wrapped) {
		t.Error("OnType should match a wrapped *codeError")
	}
	if OnType[*codeError]()(errFatal) {
		t.Error("OnType should not match errFatal")
	}
	if !Any(On(errFatal), OnType[*codeError]())(errFatal) {
		t.Error("Any should match errFatal")
	}
	if Any()(errFatal) {
		t.Error("empty Any should not match")
	}
}
