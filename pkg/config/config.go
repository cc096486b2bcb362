package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	HTTP        HTTPConfig
	JWT         JWTConfig
	Auth        AuthConfig
	Runtime     RuntimeConfig
	Cutover     CutoverConfig
	Connections map[string]ConnectionConfig
}

type HTTPConfig struct {
	Port int
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// AuthConfig lists the operators allowed to request a token (username -> password).
type AuthConfig struct {
	Operators map[string]string
}

type RuntimeConfig struct {
	DataDir        string
	RuntimeLogPath string
}

// CutoverConfig describes what a cutover run touches. The database names and
// credentials themselves live in the env file, not here.
type CutoverConfig struct {
	EnvFile             string
	Migration           string
	Connection          string
	AlternateConnection string
	Tables              []string
	Charset             string
	Collation           string
	DumpDir             string
	BookkeepingTable    string
	ReloadCommand       string
	ActiveKey           string
	StagingKey          string
	UnlockTimeout       time.Duration
}

type ConnectionConfig struct {
	Name   string
	Host   string
	Port   int
	Params map[string]string
}

// Address returns host:port for the connection.
func (c ConnectionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func Load() (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SYLOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if customPath := v.GetString("config.path"); customPath != "" {
		v.SetConfigFile(customPath)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("runtime.data_dir", "./data")

	v.SetDefault("cutover.env_file", ".env")
	v.SetDefault("cutover.migration", "dump_database_with_env_changing")
	v.SetDefault("cutover.connection", "mysql")
	v.SetDefault("cutover.alternate_connection", "mysql_dump")
	v.SetDefault("cutover.charset", "utf8mb4")
	v.SetDefault("cutover.collation", "utf8mb4_unicode_ci")
	v.SetDefault("cutover.dump_dir", ".")
	v.SetDefault("cutover.bookkeeping_table", "migrations")
	v.SetDefault("cutover.active_key", "DB_DATABASE")
	v.SetDefault("cutover.staging_key", "DB_DUMP_DATABASE")
	v.SetDefault("cutover.unlock_timeout", "30s")
}

func fromViper(v *viper.Viper) Config {
	cfg := Config{
		Environment: v.GetString("environment"),
		HTTP: HTTPConfig{
			Port: v.GetInt("http.port"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("jwt.secret"),
			AccessTokenTTL: v.GetDuration("jwt.access_token_ttl"),
		},
		Auth: AuthConfig{
			Operators: v.GetStringMapString("auth.operators"),
		},
		Runtime: RuntimeConfig{
			DataDir:        v.GetString("runtime.data_dir"),
			RuntimeLogPath: v.GetString("runtime.runtime_log_path"),
		},
		Cutover: CutoverConfig{
			EnvFile:             v.GetString("cutover.env_file"),
			Migration:           v.GetString("cutover.migration"),
			Connection:          v.GetString("cutover.connection"),
			AlternateConnection: v.GetString("cutover.alternate_connection"),
			Tables:              splitTables(v.GetStringSlice("cutover.tables")),
			Charset:             v.GetString("cutover.charset"),
			Collation:           v.GetString("cutover.collation"),
			DumpDir:             v.GetString("cutover.dump_dir"),
			BookkeepingTable:    v.GetString("cutover.bookkeeping_table"),
			ReloadCommand:       v.GetString("cutover.reload_command"),
			ActiveKey:           v.GetString("cutover.active_key"),
			StagingKey:          v.GetString("cutover.staging_key"),
			UnlockTimeout:       v.GetDuration("cutover.unlock_timeout"),
		},
		Connections: make(map[string]ConnectionConfig),
	}

	for name := range v.GetStringMap("connections") {
		prefix := "connections." + name
		port := v.GetInt(prefix + ".port")
		if port == 0 {
			port = 3306
		}
		host := v.GetString(prefix + ".host")
		if host == "" {
			host = "127.0.0.1"
		}
		cfg.Connections[name] = ConnectionConfig{
			Name:   name,
			Host:   host,
			Port:   port,
			Params: v.GetStringMapString(prefix + ".params"),
		}
	}

	if cfg.JWT.AccessTokenTTL <= 0 {
		cfg.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.Cutover.UnlockTimeout <= 0 {
		cfg.Cutover.UnlockTimeout = 30 * time.Second
	}

	return cfg
}

// ValidateServer checks the settings only the HTTP server needs.
func (c Config) ValidateServer() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (set SYLOS_JWT_SECRET)")
	}
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive, got %d", c.HTTP.Port)
	}
	return nil
}

// Connection looks up a named connection profile.
func (c Config) Connection(name string) (ConnectionConfig, bool) {
	conn, ok := c.Connections[name]
	return conn, ok
}

// ConnectionNames returns the configured profile names in sorted order.
func (c Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// splitTables accepts both yaml lists and comma separated env values
// (SYLOS_CUTOVER_TABLES=users,orders) while keeping the declared order.
func splitTables(raw []string) []string {
	tables := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			tables = append(tables, part)
		}
	}
	return tables
}
