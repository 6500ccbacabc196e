package config_test

import (
	"strings"
	"testing"

	"github.com/voicebridge-ai/voicebridge/internal/config"
)

const minimalYAML = `
asr:
  model_path: /models/ggml-small.bin
translator:
  providers:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Capacity.MaxConnectionTime != config.DefaultMaxConnectionTime {
		t.Errorf("MaxConnectionTime = %d, want %d", cfg.Capacity.MaxConnectionTime, config.DefaultMaxConnectionTime)
	}
	if cfg.Capacity.HeartbeatInterval != config.DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %d, want %d", cfg.Capacity.HeartbeatInterval, config.DefaultHeartbeatInterval)
	}
	if cfg.Translator.MaxAttempts != config.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.Translator.MaxAttempts, config.DefaultMaxAttempts)
	}
	if cfg.Translator.ChunkSize != config.DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", cfg.Translator.ChunkSize, config.DefaultChunkSize)
	}
	if cfg.ASR.Task != config.TaskTranscribe {
		t.Errorf("Task = %q, want %q", cfg.ASR.Task, config.TaskTranscribe)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
bogus_section:
  value: 1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_MissingModelPath(t *testing.T) {
	t.Parallel()
	yaml := `
translator:
  providers:
    - name: openai
      model: gpt-4o-mini
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing asr.model_path, got nil")
	}
	if !strings.Contains(err.Error(), "model_path") {
		t.Errorf("error should mention model_path, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
server:
  tls:
    cert_file: /etc/ssl/server.crt
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_ProviderRequiresModel(t *testing.T) {
	t.Parallel()
	yaml := `
asr:
  model_path: /models/ggml-small.bin
translator:
  providers:
    - name: openai
      api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for provider without model, got nil")
	}
	if !strings.Contains(err.Error(), "model is required") {
		t.Errorf("error should mention missing model, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
asr:
  task: summarise
  model_path: /models/ggml-small.bin
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "task") {
		t.Errorf("error should mention task, got: %v", err)
	}
}

func TestValidate_RequiresTranslatorProviders(t *testing.T) {
	t.Parallel()
	yaml := `
asr:
  model_path: /models/ggml-small.bin
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty translator.providers, got nil")
	}
	if !strings.Contains(err.Error(), "translator.providers") {
		t.Errorf("error should mention translator.providers, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	trNames := config.ValidProviderNames["translate"]
	if len(trNames) == 0 {
		t.Fatal("ValidProviderNames[\"translate\"] should not be empty")
	}
	found := false
	for _, n := range trNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"translate\"] should contain \"openai\"")
	}
}
