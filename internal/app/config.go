package app

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"
)

// Config holds all application configuration.
type Config struct {
	Browser Browser `koanf:"browser" validate:"required"`
	Player  Player  `koanf:"player" validate:"required"`
	Surface Surface `koanf:"surface" validate:"required"`
	Storage Storage `koanf:"storage" validate:"required"`
}

// Browser holds settings for the browser session the agent attaches to.
type Browser struct {
	Timeout    time.Duration `koanf:"timeout" validate:"required"`
	Headless   bool          `koanf:"headless"`
	NoSandbox  bool          `koanf:"no_sandbox"`
	ChromePath string        `koanf:"chrome_path" validate:"required"`
}

// Player holds playback state policy settings.
type Player struct {
	// PositionSaveInterval is how often the current playback position is
	// persisted while playing.
	PositionSaveInterval time.Duration `koanf:"position_save_interval" validate:"required"`
	// ResumeRewind is subtracted from a stored position on resume so the
	// viewer gets a few seconds of context.
	ResumeRewind time.Duration `koanf:"resume_rewind" validate:"required"`
	// EndWindow is the trailing stretch of a stream inside which a stored
	// position counts as finished and is discarded instead of resumed.
	EndWindow time.Duration `koanf:"end_window" validate:"required"`
	// AutoplayTimeout bounds the readiness poll after an episode advance.
	AutoplayTimeout  time.Duration `koanf:"autoplay_timeout" validate:"required"`
	AutoplayInterval time.Duration `koanf:"autoplay_interval" validate:"required"`
	// SubtitleAttempts bounds the poll for text tracks, which the host
	// often attaches well after the media element appears.
	SubtitleAttempts int           `koanf:"subtitle_attempts" validate:"required,min=1"`
	SubtitleInterval time.Duration `koanf:"subtitle_interval" validate:"required"`
	// SelfCausedWindow is how long after a programmatic volume write an
	// observed volumechange is attributed to the agent itself.
	SelfCausedWindow time.Duration `koanf:"self_caused_window" validate:"required"`
	// RescanDelay is the fixed wait after proxying a click into the host
	// DOM before re-scanning; the host never acknowledges the click.
	RescanDelay time.Duration `koanf:"rescan_delay" validate:"required"`
	// ManifestTimeout bounds HLS master playlist fetches.
	ManifestTimeout time.Duration `koanf:"manifest_timeout" validate:"required"`
}

// Surface holds control-surface behaviour settings.
type Surface struct {
	// HideDelay demotes visible controls to hidden after pointer
	// inactivity while playing.
	HideDelay time.Duration `koanf:"hide_delay" validate:"required"`
	// ScrollRampDuration is the press-and-hold window over which carousel
	// scroll speed ramps from 1x to ScrollMaxFactor.
	ScrollRampDuration time.Duration `koanf:"scroll_ramp_duration" validate:"required"`
	ScrollMaxFactor    float64       `koanf:"scroll_max_factor" validate:"required,gte=1"`
	// ScrollTapDistance is the fixed smooth-scroll distance of a short tap.
	ScrollTapDistance int `koanf:"scroll_tap_distance" validate:"required,min=1"`
}

// Storage holds persistence settings.
type Storage struct {
	// Path is the JSON preferences file. Writes are immediate; the host
	// page can tear the agent down without warning.
	Path string `koanf:"path" validate:"required"`
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ConfigFrom extracts the Config from the CLI command metadata.
func ConfigFrom(cmd *cli.Command) (*Config, error) {
	v, ok := cmd.Root().Metadata["config"]
	if !ok {
		return nil, fmt.Errorf("config not found in command metadata")
	}
	cfg, ok := v.(*Config)
	if !ok {
		return nil, fmt.Errorf("config has unexpected type %T", v)
	}
	return cfg, nil
}
