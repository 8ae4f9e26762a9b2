package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vidknora/vidknora/internal/types"
)

func TestIsRetryableOnlyTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", Transient("download blip", errors.New("timeout")), true},
		{"input", Input("video unavailable", nil), false},
		{"parse", Parse("bad json", nil), false},
		{"internal", Internal("invariant violation", nil), false},
		{"canceled", Canceled("checkpoint tripped"), false},
		{"quota", &QuotaExceeded{ResourceKind: types.QuotaVideos, Used: 11, Limit: 10}, false},
		{"plain error", errors.New("boom"), false},
		{"wrapped transient", fmt.Errorf("stage: %w", Transient("blip", nil)), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsRetryable(c.err); got != c.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(Canceled("checkpoint tripped")) {
		t.Error("expected Canceled error to report canceled")
	}
	if IsCanceled(Transient("blip", nil)) {
		t.Error("transient error must not report canceled")
	}
}

func TestAsQuotaExceeded(t *testing.T) {
	err := fmt.Errorf("check quota: %w", &QuotaExceeded{ResourceKind: types.QuotaMinutes, Used: 500, Limit: 400})
	q, ok := AsQuotaExceeded(err)
	if !ok {
		t.Fatal("expected quota error to be extracted")
	}
	if q.ResourceKind != types.QuotaMinutes || q.Used != 500 || q.Limit != 400 {
		t.Errorf("unexpected quota payload: %+v", q)
	}

	if _, ok := AsQuotaExceeded(Transient("blip", nil)); ok {
		t.Error("non-quota error must not be extracted as quota exceeded")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Transient("download audio failed", errors.New("connection reset"))
	want := "transient: download audio failed: connection reset"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
