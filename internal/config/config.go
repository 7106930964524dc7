package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	SessionName string          `yaml:"session_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Journal     JournalConfig   `yaml:"journal"`
	Voice       VoiceConfig     `yaml:"voice"`
	G2P         G2PConfig       `yaml:"g2p"`
	Synth       SynthConfig     `yaml:"synth"`
	Render      RenderConfig    `yaml:"render"`
	Player      PlayerConfig    `yaml:"player"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type VoiceConfig struct {
	Directory string `yaml:"directory"`
	Default   string `yaml:"default"`
}

type G2PConfig struct {
	Mode       string `yaml:"mode"` // dict, exec
	Command    string `yaml:"command"`
	Dictionary string `yaml:"dictionary"`
}

type SynthConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type RenderConfig struct {
	SampleRate int     `yaml:"sample_rate"`
	Speed      float64 `yaml:"speed"`
	PitchBase  float64 `yaml:"pitch_base"`
	TempDir    string  `yaml:"temp_dir"`
}

type PlayerConfig struct {
	Mode    string `yaml:"mode"` // exec, mock
	Command string `yaml:"command"`
}

func Default() Config {
	return Config{
		SessionName: "phonex",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "phonex",
		},
		Journal: JournalConfig{
			Path:          "./data/phonex-journal.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Voice: VoiceConfig{
			Directory: "./voices",
			Default:   "Default",
		},
		G2P: G2PConfig{
			Mode: "dict",
		},
		Synth: SynthConfig{
			Mode:      "mock",
			TimeoutMS: 30000,
		},
		Render: RenderConfig{
			SampleRate: 48000,
			Speed:      1.0,
		},
		Player: PlayerConfig{
			Mode: "exec",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.SessionName, "PHONEX_SESSION_NAME")
	overrideString(&cfg.Environment, "PHONEX_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "PHONEX_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "PHONEX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PHONEX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PHONEX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PHONEX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PHONEX_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "PHONEX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PHONEX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PHONEX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PHONEX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PHONEX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PHONEX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PHONEX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PHONEX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PHONEX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "PHONEX_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.Journal.Path, "PHONEX_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "PHONEX_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "PHONEX_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxSessions, "PHONEX_JOURNAL_MAX_SESSIONS")
	overrideBool(&cfg.Journal.VacuumOnStart, "PHONEX_JOURNAL_VACUUM_ON_START")
	overrideString(&cfg.Voice.Directory, "PHONEX_VOICE_DIRECTORY")
	overrideString(&cfg.Voice.Default, "PHONEX_VOICE_DEFAULT")
	overrideString(&cfg.G2P.Mode, "PHONEX_G2P_MODE")
	overrideString(&cfg.G2P.Command, "PHONEX_G2P_COMMAND")
	overrideString(&cfg.G2P.Dictionary, "PHONEX_G2P_DICTIONARY")
	overrideString(&cfg.Synth.Mode, "PHONEX_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "PHONEX_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.TimeoutMS, "PHONEX_SYNTH_TIMEOUT_MS")
	overrideInt(&cfg.Render.SampleRate, "PHONEX_RENDER_SAMPLE_RATE")
	overrideFloat(&cfg.Render.Speed, "PHONEX_RENDER_SPEED")
	overrideFloat(&cfg.Render.PitchBase, "PHONEX_RENDER_PITCH_BASE")
	overrideString(&cfg.Render.TempDir, "PHONEX_RENDER_TEMP_DIR")
	overrideString(&cfg.Player.Mode, "PHONEX_PLAYER_MODE")
	overrideString(&cfg.Player.Command, "PHONEX_PLAYER_COMMAND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.SessionName == "" {
		return errors.New("session_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.G2P.Mode {
	case "dict":
	case "exec":
		if cfg.G2P.Command == "" {
			return errors.New("g2p.command must be set when mode=exec")
		}
	default:
		return errors.New("g2p.mode must be one of dict|exec")
	}
	switch cfg.Synth.Mode {
	case "mock":
	case "exec":
		if cfg.Synth.Command == "" {
			return errors.New("synth.command must be set when mode=exec")
		}
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.TimeoutMS < 0 {
		return errors.New("synth.timeout_ms must be >= 0")
	}
	if cfg.Render.SampleRate <= 0 {
		return errors.New("render.sample_rate must be positive")
	}
	if math.IsNaN(cfg.Render.Speed) || cfg.Render.Speed < 0.5 || cfg.Render.Speed > 2.0 {
		return errors.New("render.speed must be within [0.5, 2.0]")
	}
	if cfg.Render.PitchBase < 0 {
		return errors.New("render.pitch_base must be >= 0")
	}
	switch cfg.Player.Mode {
	case "exec", "mock":
	default:
		return errors.New("player.mode must be one of exec|mock")
	}
	return nil
}
