package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIAMTokenSourceReissuesExpiredToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	issued := 0
	src := &iamTokenSource{
		issue: func() (string, error) {
			issued++
			return fmt.Sprintf("iam-%d", issued), nil
		},
		now: func() time.Time { return now },
		ttl: time.Hour,
	}

	steps := []struct {
		advance time.Duration
		want    string
	}{
		{0, "iam-1"},
		{30 * time.Minute, "iam-1"},
		{30 * time.Minute, "iam-2"},
		{12 * time.Hour, "iam-3"},
	}
	for i, step := range steps {
		now = now.Add(step.advance)
		got, err := src.Token()
		if err != nil {
			t.Fatalf("step %d: Token() error = %v", i, err)
		}
		if got != step.want {
			t.Errorf("step %d: Token() = %q, want %q", i, got, step.want)
		}
	}
}

func TestIAMTokenSourceInvalidate(t *testing.T) {
	issued := 0
	src := &iamTokenSource{
		issue: func() (string, error) {
			issued++
			return fmt.Sprintf("iam-%d", issued), nil
		},
		now: time.Now,
		ttl: time.Hour,
	}

	if got, _ := src.Token(); got != "iam-1" {
		t.Fatalf("Token() = %q", got)
	}
	src.invalidate()
	if got, _ := src.Token(); got != "iam-2" {
		t.Errorf("Token() after invalidate = %q, want iam-2", got)
	}
}

func TestIAMTokenSourceIssueFailure(t *testing.T) {
	boom := errors.New("iam unavailable")
	src := &iamTokenSource{
		issue: func() (string, error) { return "", boom },
		now:   time.Now,
		ttl:   time.Hour,
	}

	if _, err := src.Token(); !errors.Is(err, boom) {
		t.Fatalf("Token() error = %v, want %v", err, boom)
	}
}
