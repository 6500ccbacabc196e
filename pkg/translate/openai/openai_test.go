package openai

import (
	"testing"
	"time"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestNew_RequiresModel(t *testing.T) {
	t.Parallel()

	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_NameCarriesModel(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai/gpt-4o-mini" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestNew_AcceptsOptions(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini",
		WithBaseURL("http://localhost:8000/v1"),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider")
	}
}
