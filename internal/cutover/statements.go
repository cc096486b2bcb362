package cutover

import (
	"fmt"
	"strings"
)

const UnlockStatement = "UNLOCK TABLES"

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualified(database, table string) string {
	return quoteIdent(database) + "." + quoteIdent(table)
}

// CreateDatabaseStatement creates the target with an explicit encoding so it
// never inherits the server default.
func CreateDatabaseStatement(database, charset, collation string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET %s COLLATE %s",
		quoteIdent(database), charset, collation)
}

// LockStatement write-locks every table in both databases in one statement, in
// table-list order (new before old for each table).
func LockStatement(oldDB, newDB string, tables []string) string {
	locks := make([]string, 0, len(tables)*2)
	for _, table := range tables {
		locks = append(locks,
			qualified(newDB, table)+" WRITE",
			qualified(oldDB, table)+" WRITE",
		)
	}
	return "LOCK TABLES " + strings.Join(locks, ", ")
}

// CopyStatement copies every row of a table, skipping rows whose key already
// exists in the destination.
func CopyStatement(oldDB, newDB, table string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s SELECT * FROM %s", qualified(newDB, table), qualified(oldDB, table))
}

func MaxBatchQuery(database, table string) string {
	return fmt.Sprintf("SELECT COALESCE(MAX(batch), 0) FROM %s FOR UPDATE", qualified(database, table))
}

func InsertBookkeepingStatement(database, table string) string {
	return fmt.Sprintf("INSERT INTO %s (migration, batch) VALUES (?, ?)", qualified(database, table))
}

// Plan is the ordered list of statements a cutover would issue.
type Plan struct {
	CreateDatabase string   `json:"createDatabase"`
	Dump           string   `json:"dump"`
	Restore        string   `json:"restore"`
	Cleanup        string   `json:"cleanup"`
	Lock           string   `json:"lock"`
	Copies         []string `json:"copies"`
	Unlock         string   `json:"unlock"`
	Bookkeeping    string   `json:"bookkeeping"`
}

// NewPlan renders the statements for cfg without executing anything.
func NewPlan(cfg Config, dumpDir, bookkeepingTable string) Plan {
	replicator := &Replicator{dumpDir: dumpDir}
	copies := make([]string, 0, len(cfg.Tables))
	for _, table := range cfg.Tables {
		copies = append(copies, CopyStatement(cfg.SourceDB, cfg.TargetDB, table))
	}
	return Plan{
		CreateDatabase: CreateDatabaseStatement(cfg.TargetDB, cfg.Charset, cfg.Collation),
		Dump:           replicator.dumpCommand(cfg).String(),
		Restore:        replicator.restoreCommand(cfg).String(),
		Cleanup:        removeCommand(replicator.DumpPath(cfg)).String(),
		Lock:           LockStatement(cfg.SourceDB, cfg.TargetDB, cfg.Tables),
		Copies:         copies,
		Unlock:         UnlockStatement,
		Bookkeeping:    InsertBookkeepingStatement(cfg.TargetDB, bookkeepingTable),
	}
}
