package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// paddle components.
type Config struct {
	// Hostname or IP address on which the services will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// IP reported to clients for registered game servers. Blank will use the
	// address the registration request came from.
	ExternalIP string `mapstructure:"external_ip"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	GameServer struct {
		// Default range a game server picks its port from when MIN_PORT and
		// MAX_PORT are not set in the environment.
		MinPort int `mapstructure:"min_port"`
		MaxPort int `mapstructure:"max_port"`
	} `mapstructure:"game_server"`

	GameClient struct {
		// Time to wait between polls of the matchmaker for a queued game.
		PollInterval time.Duration `mapstructure:"poll_interval"`
		// Timeout applied to every HTTP request made by the client.
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"game_client"`

	Matchmaker struct {
		// Port on which the matchmaker HTTP service will listen.
		Port int `mapstructure:"port"`
		// Base address of the sessions service, e.g. http://localhost:8081.
		SessionsAddress string `mapstructure:"sessions_address"`
		// Where open games are kept. Options: memory, redis
		Store string `mapstructure:"store"`
		// Address of the redis instance used by the redis store.
		RedisAddress string `mapstructure:"redis_address"`
		// How long a game record is kept around.
		GameTTL time.Duration `mapstructure:"game_ttl"`
	} `mapstructure:"matchmaker"`

	Sessions struct {
		// Port on which the sessions HTTP service will listen.
		Port int `mapstructure:"port"`
		// Command (and arguments) used to launch a game server process.
		LaunchCommand []string `mapstructure:"launch_command"`
		// How long a registered session stays visible.
		SessionTTL time.Duration `mapstructure:"session_ttl"`
	} `mapstructure:"sessions"`

	Database struct {
		// Options: sqlite, postgres
		Engine string `mapstructure:"engine"`
		// File used by the sqlite engine, ":memory:" keeps everything in memory.
		Filename string `mapstructure:"filename"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the services.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		//  Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "PADDLE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("game_server.min_port", DefaultMinPort)
	v.SetDefault("game_server.max_port", DefaultMaxPort)
	v.SetDefault("game_client.poll_interval", 2*time.Second)
	v.SetDefault("game_client.request_timeout", 10*time.Second)
	v.SetDefault("matchmaker.port", 8080)
	v.SetDefault("matchmaker.sessions_address", "http://localhost:8081")
	v.SetDefault("matchmaker.store", "memory")
	v.SetDefault("matchmaker.redis_address", "localhost:6379")
	v.SetDefault("matchmaker.game_ttl", time.Hour)
	v.SetDefault("sessions.port", 8081)
	v.SetDefault("sessions.session_ttl", time.Hour)
	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.filename", "paddle.db")
	v.SetDefault("debugging.pprof_port", 6060)
}

// LoadConfig initializes Viper with the contents of the config file under configPath.
// A missing config file is not an error; defaults and environment variables apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	return config, nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// MatchmakerAddress returns the address the matchmaker service listens on.
func (c *Config) MatchmakerAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Matchmaker.Port)
}

// SessionsAddress returns the address the sessions service listens on.
func (c *Config) SessionsAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Sessions.Port)
}
