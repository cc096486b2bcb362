package cutover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockStatement(t *testing.T) {
	got := LockStatement("app_old", "app_new", []string{"t1", "t2"})
	assert.Equal(t,
		"LOCK TABLES `app_new`.`t1` WRITE, `app_old`.`t1` WRITE, `app_new`.`t2` WRITE, `app_old`.`t2` WRITE",
		got)
}

func TestStatementsQuoteIdentifiers(t *testing.T) {
	assert.Equal(t,
		"INSERT IGNORE INTO `new``db`.`t` SELECT * FROM `old`.`t`",
		CopyStatement("old", "new`db", "t"))
	assert.Equal(t,
		"CREATE DATABASE IF NOT EXISTS `app_new` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		CreateDatabaseStatement("app_new", "utf8mb4", "utf8mb4_unicode_ci"))
	assert.Equal(t,
		"SELECT COALESCE(MAX(batch), 0) FROM `app_new`.`migrations` FOR UPDATE",
		MaxBatchQuery("app_new", "migrations"))
}

func TestNewPlan(t *testing.T) {
	cfg := Config{
		SourceDB:  "app_old",
		TargetDB:  "app_new",
		Username:  "app",
		Password:  "secret",
		Tables:    []string{"t1", "t2", "t3"},
		Charset:   "utf8mb4",
		Collation: "utf8mb4_unicode_ci",
	}

	plan := NewPlan(cfg, "/tmp/dumps", "migrations")

	assert.Equal(t, CreateDatabaseStatement("app_new", "utf8mb4", "utf8mb4_unicode_ci"), plan.CreateDatabase)
	assert.Equal(t, "mysqldump --user=app --no-data --skip-add-drop-table --default-character-set=utf8mb4 app_old > /tmp/dumps/app_old.dump", plan.Dump)
	assert.Equal(t, "mysql --user=app --default-character-set=utf8mb4 app_new < /tmp/dumps/app_old.dump", plan.Restore)
	assert.Equal(t, "rm -f -- /tmp/dumps/app_old.dump", plan.Cleanup)
	assert.Len(t, plan.Copies, 3)
	assert.Equal(t, CopyStatement("app_old", "app_new", "t1"), plan.Copies[0])
	assert.Equal(t, UnlockStatement, plan.Unlock)
	assert.NotContains(t, plan.Dump, "secret")
}
