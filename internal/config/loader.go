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

// ValidVoiceEmotions lists the voice emotion presets known to the avatar
// provider. Used by [Validate] to warn about unrecognised presets.
var ValidVoiceEmotions = []string{"excited", "serious", "friendly", "soothing", "broadcaster"}

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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// LLM
	if t := cfg.Providers.LLM.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("providers.llm.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Providers.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("providers.llm.max_tokens %d must not be negative", cfg.Providers.LLM.MaxTokens))
	}

	// STT
	if cfg.Providers.STT.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("providers.stt.sample_rate %d must not be negative", cfg.Providers.STT.SampleRate))
	}

	// Room — the Twilio key pair only works as a unit.
	room := cfg.Providers.Room
	roomCreds := 0
	for _, v := range []string{room.AccountSID, room.APIKey, room.APISecret} {
		if v != "" {
			roomCreds++
		}
	}
	if roomCreds > 0 && roomCreds < 3 {
		errs = append(errs, errors.New("providers.room: account_sid, api_key and api_secret must be set together"))
	}
	if room.EmptyRoomTimeoutMinutes < 0 {
		errs = append(errs, fmt.Errorf("providers.room.empty_room_timeout_minutes %d must not be negative", room.EmptyRoomTimeoutMinutes))
	}
	if room.MaxParticipants < 0 {
		errs = append(errs, fmt.Errorf("providers.room.max_participants %d must not be negative", room.MaxParticipants))
	}
	if room.TokenTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("providers.room.token_ttl_seconds %d must not be negative", room.TokenTTLSeconds))
	}

	// Session
	if cfg.Session.TTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.ttl_seconds %d must not be negative", cfg.Session.TTLSeconds))
	}
	if cfg.Session.RedisAddr == "" && len(cfg.UseCases) > 0 {
		slog.Warn("session.redis_addr is empty; conversation history will not survive a restart")
	}

	// Provider availability warnings
	if len(cfg.UseCases) > 0 {
		if cfg.Providers.LLM.APIKey == "" {
			slog.Warn("providers.llm.api_key is empty; set it or export OPENAI_API_KEY")
		}
		if cfg.Providers.STT.APIKey == "" {
			slog.Warn("providers.stt.api_key is empty; set it or export DEEPGRAM_API_KEY")
		}
		if cfg.Providers.Avatar.APIKey == "" {
			slog.Warn("providers.avatar.api_key is empty; set it or export HEYGEN_API_KEY")
		}
	}

	// Use case duplicate name detection
	namesSeen := make(map[string]int, len(cfg.UseCases))

	// Use cases
	for i, uc := range cfg.UseCases {
		prefix := fmt.Sprintf("use_cases[%d]", i)
		if uc.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[uc.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of use_cases[%d]", prefix, uc.Name, prev))
			}
			namesSeen[uc.Name] = i
		}
		if uc.SystemPrompt == "" {
			errs = append(errs, fmt.Errorf("%s.system_prompt is required", prefix))
		}
		if uc.Avatar.AvatarID == "" {
			errs = append(errs, fmt.Errorf("%s.avatar.avatar_id is required", prefix))
		}
		if uc.Avatar.Quality != "" && !uc.Avatar.Quality.IsValid() {
			errs = append(errs, fmt.Errorf("%s.avatar.quality %q is invalid; valid values: low, medium, high", prefix, uc.Avatar.Quality))
		}
		if uc.Avatar.VoiceRate != 0 {
			if uc.Avatar.VoiceRate < 0.5 || uc.Avatar.VoiceRate > 1.5 {
				errs = append(errs, fmt.Errorf("%s.avatar.voice_rate %.2f is out of range [0.5, 1.5]", prefix, uc.Avatar.VoiceRate))
			}
		}
		validateVoiceEmotion(uc.Name, uc.Avatar.VoiceEmotion)
	}

	return errors.Join(errs...)
}

// UseCase returns the use case with the given name, or false when no such
// use case is configured.
func (c *Config) UseCase(name string) (UseCaseConfig, bool) {
	for _, uc := range c.UseCases {
		if uc.Name == name {
			return uc, true
		}
	}
	return UseCaseConfig{}, false
}

// validateVoiceEmotion logs a warning if emotion is non-empty and not found
// in [ValidVoiceEmotions].
func validateVoiceEmotion(useCase, emotion string) {
	if emotion == "" {
		return
	}
	if slices.Contains(ValidVoiceEmotions, emotion) {
		return
	}
	slog.Warn("unknown voice emotion preset — may be a typo or a newly added preset",
		"use_case", useCase,
		"emotion", emotion,
		"known", ValidVoiceEmotions,
	)
}
