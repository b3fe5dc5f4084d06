package executor

import (
	"testing"
	"time"

	"github.com/kota-kawa/web-agent01-sub000/internal/config"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
)

func TestAugmentPlanInsertsWaitAfterOrdinalClick(t *testing.T) {
	idx := 3
	actions := []dsl.Action{
		{Type: dsl.ActionClick, Selector: &dsl.Selector{OrdinalIndex: &idx}},
		{Type: dsl.ActionAssert, Selector: &dsl.Selector{CSS: "div"}, AssertState: "visible"},
	}
	out := augmentPlan(actions)
	if len(out) != 3 {
		t.Fatalf("expected 3 actions after augmentation, got %d", len(out))
	}
	if out[1].Type != dsl.ActionWait || out[1].Wait == nil || out[1].Wait.Kind() != "for_timeout" {
		t.Fatalf("expected an implicit for_timeout wait inserted after the ordinal click, got %+v", out[1])
	}
}

func TestAugmentPlanLeavesNonOrdinalClicksAlone(t *testing.T) {
	actions := []dsl.Action{
		{Type: dsl.ActionClick, Selector: &dsl.Selector{CSS: "#submit"}},
		{Type: dsl.ActionNavigate, URL: "https://example.com"},
	}
	out := augmentPlan(actions)
	if len(out) != 2 {
		t.Fatalf("expected no actions inserted, got %d", len(out))
	}
}

func TestBackoffCapsAtRetryMaxWait(t *testing.T) {
	e := &Executor{cfg: &config.Config{
		RetryBaseWait: 500 * time.Millisecond,
		RetryMaxWait:  2 * time.Second,
		RetryJitter:   0,
	}}
	for attempt := 1; attempt <= 6; attempt++ {
		d := e.backoff(attempt)
		if d > e.cfg.RetryMaxWait {
			t.Fatalf("backoff(%d) = %v, exceeds cap %v", attempt, d, e.cfg.RetryMaxWait)
		}
	}
}

func TestHostAllowedMatchesExactAndSuffix(t *testing.T) {
	allowed := []string{"example.com"}
	cases := map[string]bool{
		"https://example.com/path":     true,
		"https://sub.example.com/path": true,
		"https://evil.com/":            false,
		"https://notexample.com/":      false,
		"about:blank":                  true,
	}
	for rawURL, want := range cases {
		if got := hostAllowed(rawURL, allowed); got != want {
			t.Errorf("hostAllowed(%q) = %v, want %v", rawURL, got, want)
		}
	}
}

func TestBackoffGrowsBeforeCapping(t *testing.T) {
	e := &Executor{cfg: &config.Config{
		RetryBaseWait: 500 * time.Millisecond,
		RetryMaxWait:  10 * time.Second,
		RetryJitter:   0,
	}}
	d1 := e.backoff(1)
	d2 := e.backoff(2)
	if d2 <= d1 {
		t.Fatalf("expected backoff to grow: backoff(1)=%v backoff(2)=%v", d1, d2)
	}
}
