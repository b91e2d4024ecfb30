package utils

import (
	"context"
	"testing"
)

func TestConcurrencyScriptsCompile(t *testing.T) {
	if capAcquireScript == nil || capReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestConcurrencyCap_RejectsBadInput(t *testing.T) {
	var c *ConcurrencyCap
	if _, err := c.Acquire(context.Background(), "x", 1); err == nil {
		t.Fatalf("expected error for nil cap")
	}
	c = NewConcurrencyCap(nil, "dial:", 0)
	if c.ttl <= 0 {
		t.Fatalf("expected default ttl")
	}
	if err := c.Release(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
