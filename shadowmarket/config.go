package shadowmarket

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log       LogConfig       `toml:"log"`
	Bot       BotConfig       `toml:"bot"`
	DB        DBConfig        `toml:"db"`
	Spaces    SpacesConfig    `toml:"spaces"`
	Inference InferenceConfig `toml:"inference"`
	Oracle    OracleConfig    `toml:"oracle"`
	Market    MarketConfig    `toml:"market"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type SpacesConfig struct {
	Key         string `toml:"key"`
	Secret      string `toml:"secret"`
	Region      string `toml:"region"`
	Bucket      string `toml:"bucket"`
	ContentRoot string `toml:"content_root"`
}

type InferenceConfig struct {
	ScoreURL string `toml:"score_url"`
	TagURL   string `toml:"tag_url"`
	Token    string `toml:"token"`
}

type OracleConfig struct {
	BaseURL string `toml:"base_url"`
}

// MarketConfig tunes the marketplace surfaces. Trend pools override the
// built-in defaults when present.
type MarketConfig struct {
	GalleryChannel snowflake.ID `toml:"gallery_channel"`
	TrendChannel   snowflake.ID `toml:"trend_channel"`
	PosePool       []string     `toml:"pose_pool"`
	CostumePool    []string     `toml:"costume_pool"`
	BodyPool       []string     `toml:"body_pool"`
}
