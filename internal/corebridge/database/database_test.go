package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
)

func TestDSN(t *testing.T) {
	profile := config.ConnectionConfig{
		Name:   "mysql",
		Host:   "db.internal",
		Port:   3307,
		Params: map[string]string{"sql_mode": "'TRADITIONAL'"},
	}

	dsn := DSN(profile, "app", "p@ss:word")

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Empty(t, parsed.DBName)
	assert.Equal(t, 10*time.Second, parsed.Timeout)
	assert.Equal(t, "'TRADITIONAL'", parsed.Params["sql_mode"])
}

func TestDefaultPoolOptions(t *testing.T) {
	opts := DefaultPoolOptions()
	assert.GreaterOrEqual(t, opts.MaxOpenConns, 2)
	assert.Positive(t, opts.ConnMaxLifetime)
}
