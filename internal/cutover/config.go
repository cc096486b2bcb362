package cutover

import (
	"fmt"
	"regexp"

	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
)

const (
	UsernameKey = "DB_USERNAME"
	PasswordKey = "DB_PASSWORD"
)

var charsetPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Env is a read-only view of the secret/environment store.
type Env interface {
	Get(key string) (string, bool)
}

// Registry resolves named connection profiles.
type Registry interface {
	Connection(name string) (config.ConnectionConfig, bool)
	ConnectionNames() []string
}

// Options names where Resolve looks things up.
type Options struct {
	SourceKey        string
	TargetKey        string
	AlternateProfile string
	Tables           []string
	Charset          string
	Collation        string
}

// OptionsFrom maps the service configuration onto resolver options.
func OptionsFrom(c config.CutoverConfig) Options {
	return Options{
		SourceKey:        c.ActiveKey,
		TargetKey:        c.StagingKey,
		AlternateProfile: c.AlternateConnection,
		Tables:           c.Tables,
		Charset:          c.Charset,
		Collation:        c.Collation,
	}
}

// Config is everything a cutover run needs, resolved once up front.
type Config struct {
	SourceDB         string
	TargetDB         string
	Username         string
	Password         string
	Tables           []string
	AlternateProfile config.ConnectionConfig
	Charset          string
	Collation        string
}

// Resolve binds the database names and credentials from env and checks the
// alternate connection profile exists. It either returns a complete Config or an
// error; nothing is partially bound.
func Resolve(env Env, registry Registry, opts Options) (Config, error) {
	profile, ok := registry.Connection(opts.AlternateProfile)
	if !ok {
		return Config{}, &ConfigurationError{
			Missing:   fmt.Sprintf("[connections.%s]", opts.AlternateProfile),
			Available: registry.ConnectionNames(),
		}
	}

	required := []string{opts.SourceKey, opts.TargetKey, UsernameKey, PasswordKey}
	values := make(map[string]string, len(required))
	var missing []string
	for _, key := range required {
		value, ok := env.Get(key)
		if !ok || value == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = value
	}
	if len(missing) > 0 {
		return Config{}, &EnvironmentError{Required: required, Missing: missing}
	}

	if len(opts.Tables) == 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrNoTables, &ConfigurationError{Missing: "[cutover.tables]"})
	}
	if values[opts.SourceKey] == values[opts.TargetKey] {
		return Config{}, &ConfigurationError{
			Missing: fmt.Sprintf("[%s != %s]", opts.SourceKey, opts.TargetKey),
		}
	}
	if !charsetPattern.MatchString(opts.Charset) || !charsetPattern.MatchString(opts.Collation) {
		return Config{}, &ConfigurationError{Missing: "[cutover.charset, cutover.collation]"}
	}

	tables := make([]string, len(opts.Tables))
	copy(tables, opts.Tables)

	return Config{
		SourceDB:         values[opts.SourceKey],
		TargetDB:         values[opts.TargetKey],
		Username:         values[UsernameKey],
		Password:         values[PasswordKey],
		Tables:           tables,
		AlternateProfile: profile,
		Charset:          opts.Charset,
		Collation:        opts.Collation,
	}, nil
}
