package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

func TestNew_RequiresProviderName(t *testing.T) {
	t.Parallel()

	if _, err := New("", "some-model"); err == nil {
		t.Fatal("expected error for empty provider name")
	}
}

func TestNew_RequiresModel(t *testing.T) {
	t.Parallel()

	if _, err := New("ollama", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedBackend(t *testing.T) {
	t.Parallel()

	_, err := New("smoke-signals", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported backend")
	}
	if !strings.Contains(err.Error(), "smoke-signals") {
		t.Errorf("error %q does not name the backend", err)
	}
}

func TestNew_NameCombinesBackendAndModel(t *testing.T) {
	t.Parallel()

	p, err := New("Groq", "llama-3.3-70b-versatile", anyllmlib.WithAPIKey("gsk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "groq/llama-3.3-70b-versatile" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestNewOllama_NoAPIKeyRequired(t *testing.T) {
	t.Parallel()

	p, err := NewOllama("qwen2.5:14b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "ollama/qwen2.5:14b" {
		t.Errorf("Name() = %q", p.Name())
	}
}
