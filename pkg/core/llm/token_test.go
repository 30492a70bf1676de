package llm_test

import (
	"strings"
	"testing"

	"github.com/easyops/convref-go/pkg/core/llm"
)

func TestEstimatedCounter(t *testing.T) {
	c := llm.NewEstimatedCounter()
	if got := c.Count(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("expected 10 tokens, got %d", got)
	}
	if got := c.Truncate(strings.Repeat("a", 40), 5); len(got) != 20 {
		t.Errorf("expected 20 chars, got %d", len(got))
	}
	if got := c.Truncate("short", 0); got != "short" {
		t.Errorf("expected no truncation for zero budget, got %q", got)
	}
}

func TestTokenCounter_TruncateWithinBudget(t *testing.T) {
	c := llm.NewTokenCounter("gpt-4o-mini")
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)

	truncated := c.Truncate(text, 20)
	if c.Count(truncated) > 20 {
		t.Errorf("expected at most 20 tokens, got %d", c.Count(truncated))
	}
	if !strings.HasPrefix(text, truncated) {
		t.Error("expected truncation to keep a prefix")
	}
	if c.Truncate("hello", 20) != "hello" {
		t.Error("expected short text unchanged")
	}
}
