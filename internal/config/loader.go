package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] for fields left unset.
const (
	DefaultListenAddr        = ":9090"
	DefaultMaxSpeakers       = 4
	DefaultMaxListeners      = 100
	DefaultMaxConnectionTime = 72000
	DefaultHeartbeatInterval = 15
	DefaultMaxAttempts       = 3
	DefaultRetryDelayMS      = 500
	DefaultChunkSize         = 30
	DefaultContextDepth      = 3
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":       {"whisper-native"},
	"translate": {"openai", "anyllm", "groq", "mistral", "deepseek", "ollama", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.ASR.Backend == "" {
		cfg.ASR.Backend = "whisper-native"
	}
	if cfg.ASR.Task == "" {
		cfg.ASR.Task = TaskTranscribe
	}
	if cfg.Capacity.MaxSpeakers == 0 {
		cfg.Capacity.MaxSpeakers = DefaultMaxSpeakers
	}
	if cfg.Capacity.MaxListeners == 0 {
		cfg.Capacity.MaxListeners = DefaultMaxListeners
	}
	if cfg.Capacity.MaxConnectionTime == 0 {
		cfg.Capacity.MaxConnectionTime = DefaultMaxConnectionTime
	}
	if cfg.Capacity.HeartbeatInterval == 0 {
		cfg.Capacity.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Translator.MaxAttempts == 0 {
		cfg.Translator.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Translator.RetryDelayMS == 0 {
		cfg.Translator.RetryDelayMS = DefaultRetryDelayMS
	}
	if cfg.Translator.ChunkSize == 0 {
		cfg.Translator.ChunkSize = DefaultChunkSize
	}
	if cfg.Translator.ContextDepth == 0 {
		cfg.Translator.ContextDepth = DefaultContextDepth
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// ASR
	validateProviderName("asr", cfg.ASR.Backend)
	if cfg.ASR.ModelPath == "" {
		errs = append(errs, errors.New("asr.model_path is required"))
	}
	if !cfg.ASR.Task.IsValid() {
		errs = append(errs, fmt.Errorf("asr.task %q is invalid; valid values: transcribe, translate", cfg.ASR.Task))
	}

	// Capacity
	if cfg.Capacity.MaxSpeakers < 0 {
		errs = append(errs, fmt.Errorf("capacity.max_speakers %d must not be negative", cfg.Capacity.MaxSpeakers))
	}
	if cfg.Capacity.MaxListeners < 0 {
		errs = append(errs, fmt.Errorf("capacity.max_listeners %d must not be negative", cfg.Capacity.MaxListeners))
	}
	if cfg.Capacity.MaxConnectionTime < 0 {
		errs = append(errs, fmt.Errorf("capacity.max_connection_time %d must not be negative", cfg.Capacity.MaxConnectionTime))
	}
	if cfg.Capacity.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("capacity.heartbeat_interval %d must not be negative", cfg.Capacity.HeartbeatInterval))
	}

	// Translator
	if len(cfg.Translator.Providers) == 0 {
		errs = append(errs, errors.New("translator.providers must list at least one provider"))
	}
	namesSeen := make(map[string]int, len(cfg.Translator.Providers))
	for i, p := range cfg.Translator.Providers {
		prefix := fmt.Sprintf("translator.providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("translate", p.Name)
		if p.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		// Same provider twice with the same model is almost always a copy-paste slip.
		key := p.Name + "/" + p.Model + "/" + p.BaseURL
		if prev, ok := namesSeen[key]; ok {
			slog.Warn("duplicate translator provider entry",
				"index", i, "previous", prev, "name", p.Name, "model", p.Model)
		}
		namesSeen[key] = i
	}
	if cfg.Translator.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("translator.max_attempts %d must be at least 1", cfg.Translator.MaxAttempts))
	}
	if cfg.Translator.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("translator.chunk_size %d must be at least 1", cfg.Translator.ChunkSize))
	}
	if cfg.Translator.ContextDepth < 0 {
		errs = append(errs, fmt.Errorf("translator.context_depth %d must not be negative", cfg.Translator.ContextDepth))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
