package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/voicebridge-ai/voicebridge/internal/resilience"
	"github.com/voicebridge-ai/voicebridge/pkg/translate"
	translatemock "github.com/voicebridge-ai/voicebridge/pkg/translate/mock"
)

// goodResponse builds a valid provider reply covering the given languages.
func goodResponse(langs ...string) string {
	m := make(map[string]string, len(langs))
	for _, lang := range langs {
		m[lang] = "translated " + lang
	}
	out, _ := json.Marshal(map[string]map[string]string{"translate": m})
	return string(out)
}

// fastCfg keeps retry delays out of test runtime.
func fastCfg() Config {
	return Config{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		ChunkSize:    30,
		ContextDepth: 3,
	}
}

func TestTranslate_EmptyPool(t *testing.T) {
	t.Parallel()

	p := NewPool(nil, fastCfg())
	if _, err := p.Translate(context.Background(), "hello", "en", []string{"de"}); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("Translate error = %v, want ErrNoProviders", err)
	}
}

func TestTranslate_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	m.Enqueue(translatemock.Response{Content: goodResponse("de", "fr")})
	p := NewPool([]translate.Provider{m}, fastCfg())

	got, err := p.Translate(context.Background(), "hello there", "en", []string{"de", "fr"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := map[string]string{
		"de": "translated de",
		"fr": "translated fr",
		"en": "hello there",
	}
	if len(got) != len(want) {
		t.Fatalf("result = %v, want %v", got, want)
	}
	for lang, text := range want {
		if got[lang] != text {
			t.Errorf("result[%q] = %q, want %q", lang, got[lang], text)
		}
	}
	if m.CallCount() != 1 {
		t.Errorf("call count = %d, want 1", m.CallCount())
	}
}

func TestTranslate_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	m.Enqueue(
		translatemock.Response{Err: errors.New("connection reset")},
		translatemock.Response{Content: "not json at all"},
		translatemock.Response{Content: goodResponse("de")},
	)
	p := NewPool([]translate.Provider{m}, fastCfg())

	got, err := p.Translate(context.Background(), "hello", "en", []string{"de"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got["de"] != "translated de" {
		t.Errorf(`result["de"] = %q, want "translated de"`, got["de"])
	}
	if m.CallCount() != 3 {
		t.Errorf("call count = %d, want 3", m.CallCount())
	}
}

func TestTranslate_DropsUnitAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	m.Enqueue(translatemock.Response{Content: `{"wrong": "shape"}`})
	p := NewPool([]translate.Provider{m}, fastCfg())

	_, err := p.Translate(context.Background(), "hello", "en", []string{"de"})
	if !errors.Is(err, resilience.ErrRetriesExhausted) {
		t.Fatalf("Translate error = %v, want ErrRetriesExhausted", err)
	}
	if m.CallCount() != 3 {
		t.Errorf("call count = %d, want 3", m.CallCount())
	}
	if got := p.ContextSnapshot(); len(got) != 0 {
		t.Errorf("context advanced on failure: %v", got)
	}
}

func TestTranslate_MissingLanguageIsRetried(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	m.Enqueue(
		translatemock.Response{Content: goodResponse("de")}, // fr missing
		translatemock.Response{Content: goodResponse("de", "fr")},
	)
	p := NewPool([]translate.Provider{m}, fastCfg())

	got, err := p.Translate(context.Background(), "hello", "en", []string{"de", "fr"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got["fr"] != "translated fr" {
		t.Errorf(`result["fr"] = %q, want "translated fr"`, got["fr"])
	}
	if m.CallCount() != 2 {
		t.Errorf("call count = %d, want 2", m.CallCount())
	}
}

func TestTranslate_ChunksLargeTargetSets(t *testing.T) {
	t.Parallel()

	var tgts []string
	for i := range 35 {
		tgts = append(tgts, fmt.Sprintf("l%02d", i))
	}

	// Chunks run concurrently, so the sticky response covers every target
	// and each chunk succeeds on its first attempt.
	m := translatemock.New("mock")
	m.Enqueue(translatemock.Response{Content: goodResponse(tgts...)})
	p := NewPool([]translate.Provider{m}, fastCfg())

	got, err := p.Translate(context.Background(), "hello", "en", tgts)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if m.CallCount() != 2 {
		t.Errorf("call count = %d, want 2 (one per chunk)", m.CallCount())
	}
	// 35 targets plus the source pass-through.
	if len(got) != 36 {
		t.Errorf("result size = %d, want 36", len(got))
	}
	for _, lang := range tgts {
		if got[lang] == "" {
			t.Errorf("result missing language %q", lang)
		}
	}
}

func TestTranslate_RoundRobin(t *testing.T) {
	t.Parallel()

	a := translatemock.New("a")
	a.Enqueue(translatemock.Response{Content: goodResponse("de")})
	b := translatemock.New("b")
	b.Enqueue(translatemock.Response{Content: goodResponse("de")})
	p := NewPool([]translate.Provider{a, b}, fastCfg())

	for i := range 4 {
		if _, err := p.Translate(context.Background(), "hello", "en", []string{"de"}); err != nil {
			t.Fatalf("Translate %d: %v", i, err)
		}
	}
	if a.CallCount() != 2 || b.CallCount() != 2 {
		t.Errorf("calls = a:%d b:%d, want 2 each", a.CallCount(), b.CallCount())
	}
}

// unhealthy wraps a mock provider and reports an open circuit.
type unhealthy struct {
	*translatemock.Provider
}

func (unhealthy) Healthy() bool { return false }

func TestTranslate_SkipsUnhealthyProvider(t *testing.T) {
	t.Parallel()

	down := translatemock.New("down")
	up := translatemock.New("up")
	up.Enqueue(translatemock.Response{Content: goodResponse("de")})
	p := NewPool([]translate.Provider{unhealthy{down}, up}, fastCfg())

	if _, err := p.Translate(context.Background(), "hello", "en", []string{"de"}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if down.CallCount() != 0 {
		t.Errorf("unhealthy provider was called %d times", down.CallCount())
	}
	if up.CallCount() != 1 {
		t.Errorf("healthy provider call count = %d, want 1", up.CallCount())
	}
}

func TestTranslate_RollingContext(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	m.Enqueue(translatemock.Response{Content: goodResponse("de")})
	p := NewPool([]translate.Provider{m}, fastCfg())

	texts := []string{"one.", "two.", "three.", "four.", "five."}
	for _, text := range texts {
		if _, err := p.Translate(context.Background(), text, "en", []string{"de"}); err != nil {
			t.Fatalf("Translate(%q): %v", text, err)
		}
	}

	got := p.ContextSnapshot()
	want := []string{"three.", "four.", "five."}
	if len(got) != len(want) {
		t.Fatalf("context = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("context[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// The most recent call should carry the units before it as context.
	calls := m.Calls()
	last := calls[len(calls)-1]
	if !strings.Contains(last.SystemPrompt, "two. three. four.") {
		t.Errorf("system prompt missing rolling context:\n%s", last.SystemPrompt)
	}
}

func TestTranslate_PromptCarriesExampleAndText(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	m.Enqueue(translatemock.Response{Content: goodResponse("de", "ar")})
	p := NewPool([]translate.Provider{m}, fastCfg())

	if _, err := p.Translate(context.Background(), "good morning", "en", []string{"de", "ar"}); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	call := m.Calls()[0]
	if call.UserPrompt != "good morning" {
		t.Errorf("user prompt = %q, want the source text", call.UserPrompt)
	}
	for _, fragment := range []string{`"translate"`, `"de"`, `"ar"`, "strict JSON"} {
		if !strings.Contains(call.SystemPrompt, fragment) {
			t.Errorf("system prompt missing %q", fragment)
		}
	}
}

func TestTranslate_CancelledContext(t *testing.T) {
	t.Parallel()

	m := translatemock.New("mock")
	p := NewPool([]translate.Provider{m}, fastCfg())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Translate(ctx, "hello", "en", []string{"de"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Translate error = %v, want context.Canceled", err)
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "plain object",
			raw:  `{"translate": {"de": "hallo"}}`,
			want: []string{"de"},
		},
		{
			name: "double encoded",
			raw:  `"{\"translate\": {\"de\": \"hallo\"}}"`,
			want: []string{"de"},
		},
		{
			name: "surrounding whitespace",
			raw:  "\n  {\"translate\": {\"de\": \"hallo\"}}  \n",
			want: []string{"de"},
		},
		{
			name:    "not json",
			raw:     "hallo",
			want:    []string{"de"},
			wantErr: true,
		},
		{
			name:    "missing translate key",
			raw:     `{"result": {"de": "hallo"}}`,
			want:    []string{"de"},
			wantErr: true,
		},
		{
			name:    "missing language",
			raw:     `{"translate": {"de": "hallo"}}`,
			want:    []string{"de", "fr"},
			wantErr: true,
		},
		{
			name: "volunteered extras are dropped",
			raw:  `{"translate": {"de": "hallo", "fr": "salut"}}`,
			want: []string{"de"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseResponse(tc.raw, tc.want)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseResponse(%q) succeeded, want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResponse(%q): %v", tc.raw, err)
			}
			if len(got) != len(tc.want) {
				t.Errorf("result has %d languages, want %d", len(got), len(tc.want))
			}
			for _, lang := range tc.want {
				if got[lang] == "" {
					t.Errorf("result missing %q", lang)
				}
			}
		})
	}
}

func TestSplitChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"empty", 0, 30, nil},
		{"under one chunk", 5, 30, []int{5}},
		{"exact chunk", 30, 30, []int{30}},
		{"two chunks", 35, 30, []int{30, 5}},
		{"many chunks", 61, 30, []int{30, 30, 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			langs := make([]string, tc.n)
			for i := range langs {
				langs[i] = fmt.Sprintf("l%d", i)
			}
			chunks := splitChunks(langs, tc.size)
			if len(chunks) != len(tc.want) {
				t.Fatalf("chunk count = %d, want %d", len(chunks), len(tc.want))
			}
			for i, wantLen := range tc.want {
				if len(chunks[i]) != wantLen {
					t.Errorf("chunk %d length = %d, want %d", i, len(chunks[i]), wantLen)
				}
			}
		})
	}
}
