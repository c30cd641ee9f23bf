// Package config provides the configuration schema, loader, and validation
// for the FaceDancer service.
package config

// LogLevel controls log verbosity for the FaceDancer server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Quality selects the avatar video quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// IsValid reports whether q is a recognised quality tier.
func (q Quality) IsValid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// Config is the root configuration structure for FaceDancer.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	UseCases  []UseCaseConfig `yaml:"use_cases"`
}

// ServerConfig holds network and logging settings for the FaceDancer server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig holds the vendor credentials and tuning for each pipeline
// stage. API keys left empty here are filled from the environment by the
// entrypoint (OPENAI_API_KEY, DEEPGRAM_API_KEY, HEYGEN_API_KEY,
// TWILIO_ACCOUNT_SID, TWILIO_API_KEY, TWILIO_API_SECRET).
type ProvidersConfig struct {
	LLM    LLMConfig    `yaml:"llm"`
	STT    STTConfig    `yaml:"stt"`
	Avatar AvatarConfig `yaml:"avatar"`
	Room   RoomConfig   `yaml:"room"`
}

// LLMConfig configures the streaming chat-completion provider.
type LLMConfig struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects the chat model (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Temperature is the sampling temperature in the range [0, 2].
	// Zero means the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the reply length. Zero means no explicit cap.
	MaxTokens int `yaml:"max_tokens"`
}

// STTConfig configures the streaming speech-to-text provider.
type STTConfig struct {
	// APIKey authenticates against the Deepgram API.
	APIKey string `yaml:"api_key"`

	// Model selects the recognition model (e.g., "nova-3").
	Model string `yaml:"model"`

	// Language is the BCP-47 language code for recognition (e.g., "en").
	Language string `yaml:"language"`

	// SampleRate is the microphone audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
}

// AvatarConfig configures the streaming talking-head avatar provider.
type AvatarConfig struct {
	// APIKey authenticates against the HeyGen streaming API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}

// RoomConfig configures the Twilio video room provider.
type RoomConfig struct {
	// AccountSID is the Twilio account SID (AC…).
	AccountSID string `yaml:"account_sid"`

	// APIKey and APISecret are a Twilio API key pair (SK…).
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// EmptyRoomTimeoutMinutes is how long an empty room stays alive before
	// Twilio tears it down. Zero means 5.
	EmptyRoomTimeoutMinutes int `yaml:"empty_room_timeout_minutes"`

	// MaxParticipants caps the room size. Zero means 2 (user + avatar bot).
	MaxParticipants int `yaml:"max_participants"`

	// TokenTTLSeconds is the room access token lifetime. Zero means 3600.
	TokenTTLSeconds int `yaml:"token_ttl_seconds"`
}

// SessionConfig holds settings for the turn session store.
type SessionConfig struct {
	// RedisAddr is the Redis server address (e.g., "localhost:6379").
	// When empty, conversation history is kept in process memory only.
	RedisAddr string `yaml:"redis_addr"`

	// RedisPassword is the Redis AUTH password, if any.
	RedisPassword string `yaml:"redis_password"`

	// RedisDB selects the Redis logical database.
	RedisDB int `yaml:"redis_db"`

	// TTLSeconds is the idle lifetime of a conversation's history,
	// refreshed on every write. Zero means 3600.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// UseCaseConfig describes a single conversational persona: the system prompt
// driving the LLM, the greeting spoken when the avatar stream comes up, and
// the avatar profile to render.
type UseCaseConfig struct {
	// Name is a unique identifier for this use case, selected by clients
	// when opening a conversation.
	Name string `yaml:"name"`

	// SystemPrompt seeds every new conversation history.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting is spoken by the avatar as soon as its stream is ready.
	// Empty means no greeting.
	Greeting string `yaml:"greeting"`

	// Avatar configures the talking-head rendering for this use case.
	Avatar AvatarProfileConfig `yaml:"avatar"`
}

// AvatarProfileConfig specifies the avatar rendering parameters for a use case.
type AvatarProfileConfig struct {
	// AvatarID is the provider-specific avatar identifier.
	AvatarID string `yaml:"avatar_id"`

	// Quality selects the video quality tier.
	Quality Quality `yaml:"quality"`

	// Language is the BCP-47 language tag for speech (e.g., "en").
	Language string `yaml:"language"`

	// VoiceRate adjusts speaking rate in the range [0.5, 1.5]. 0 means default.
	VoiceRate float64 `yaml:"voice_rate"`

	// VoiceEmotion is the provider-specific voice emotion preset
	// (e.g., "excited", "serious", "friendly").
	VoiceEmotion string `yaml:"voice_emotion"`
}
