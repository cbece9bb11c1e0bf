package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/measure"
)

type Config struct {
	Port           int    `envconfig:"PORT" default:"8080"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	JWTSecret      string `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	AssetDir       string `envconfig:"ASSET_DIR" default:"./data/assets"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`

	HistoryDepth       int     `envconfig:"HISTORY_DEPTH" default:"50"`
	EraserRadius       float64 `envconfig:"ERASER_RADIUS" default:"10"`
	MinShapeSize       float64 `envconfig:"MIN_SHAPE_SIZE" default:"3"`
	DuplicateOffset    float64 `envconfig:"DUPLICATE_OFFSET" default:"20"`
	DefaultStroke      string  `envconfig:"DEFAULT_STROKE" default:"#ff0000"`
	DefaultStrokeWidth float64 `envconfig:"DEFAULT_STROKE_WIDTH" default:"2"`
	DefaultFontSize    float64 `envconfig:"DEFAULT_FONT_SIZE" default:"18"`
	DefaultUnit        string  `envconfig:"DEFAULT_UNIT" default:"px"`
	UnitsPerPixel      float64 `envconfig:"UNITS_PER_PIXEL" default:"1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Units().Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Origins splits ALLOWED_ORIGINS.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}

func (c *Config) Units() measure.Units {
	return measure.Units{Unit: measure.Unit(c.DefaultUnit), UnitsPerPixel: c.UnitsPerPixel}
}

// EngineOptions builds the options every server-side engine is created with.
func (c *Config) EngineOptions(log *slog.Logger) engine.Options {
	return engine.Options{
		HistoryDepth:    c.HistoryDepth,
		EraserRadius:    c.EraserRadius,
		HitTolerance:    engine.DefaultOptions().HitTolerance,
		MinShapeSize:    c.MinShapeSize,
		DuplicateOffset: c.DuplicateOffset,
		Style: engine.Style{
			Stroke:      c.DefaultStroke,
			StrokeWidth: c.DefaultStrokeWidth,
			DashStyle:   document.DashSolid,
			FontSize:    c.DefaultFontSize,
		},
		Units:  c.Units(),
		Logger: log,
	}
}
