package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Game     GameConfig     `mapstructure:"game"`
	Data     DataConfig     `mapstructure:"data"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"` // guards /api/ops/*
	// OpsWhitelist restricts /api/ops/* to these client IPs. Empty allows any.
	OpsWhitelist []string `mapstructure:"ops_whitelist"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the browser origins accepted by CORS, WebSocket
	// and SSE. An empty slice allows all origins (local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GameConfig struct {
	QuizPassPercent    int           `mapstructure:"quiz_pass_percent"`
	QuestQuizTimeLimit time.Duration `mapstructure:"quest_quiz_time_limit"`
	AttemptTTL         time.Duration `mapstructure:"attempt_ttl"`
	// StrictTransitions turns on precondition checks for quest transitions
	// and step ownership. Off reproduces the permissive dashboard behaviour.
	StrictTransitions bool          `mapstructure:"strict_transitions"`
	RankingRefresh    time.Duration `mapstructure:"ranking_refresh"`
	FeedPageSize      int           `mapstructure:"feed_page_size"`
	PointsPerLevel    int           `mapstructure:"points_per_level"`
	MaxLevel          int           `mapstructure:"max_level"`
}

type DataConfig struct {
	Dir      string `mapstructure:"dir"`       // optional YAML overrides
	QuizXLSX string `mapstructure:"quiz_xlsx"` // optional extra quiz bank
}

// Load reads config from the given YAML file path. Environment variables
// prefixed with FARMQUEST_ override file values (FARMQUEST_SERVER_PORT).
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("farmquest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "memory")
	v.SetDefault("database.sqlite_path", "./data/farmquest.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 20)
	v.SetDefault("database.mysql_max_idle", 5)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "change-me")
	v.SetDefault("security.jwt_ttl_h", "24h")
	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("security.rate_limit_rps", 50)
	v.SetDefault("security.rate_limit_burst", 100)
	v.SetDefault("game.quiz_pass_percent", 70)
	v.SetDefault("game.quest_quiz_time_limit", "300s")
	v.SetDefault("game.attempt_ttl", "30m")
	v.SetDefault("game.strict_transitions", false)
	v.SetDefault("game.ranking_refresh", "1m")
	v.SetDefault("game.feed_page_size", 20)
	v.SetDefault("game.points_per_level", 300)
	v.SetDefault("game.max_level", 10)
	v.SetDefault("data.dir", "")
	v.SetDefault("data.quiz_xlsx", "")
}
