package cutover

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCutoverInProgress = errors.New("another cutover is in progress")
	ErrNoTables          = errors.New("no tables configured for cutover")
)

// ConfigurationError means a required piece of static configuration, usually a
// connection profile, is missing. Nothing has been touched yet.
type ConfigurationError struct {
	Missing string
	// Available lists the connection profiles that are configured when the
	// missing piece is a profile.
	Available []string
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("config file is not properly defined {%s}", e.Missing)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" configured connections: %s", strings.Join(e.Available, ", "))
	}
	return msg
}

// EnvironmentError means the env store lacks one of the database facts.
type EnvironmentError struct {
	Required []string
	Missing  []string
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf(".env file is not properly defined {[%s]} missing: %s",
		strings.Join(e.Required, ", "), strings.Join(e.Missing, ", "))
}

// ReplicationError reports a structure dump/restore step that failed. No table
// locks have been taken when it is returned.
type ReplicationError struct {
	Step     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ReplicationError) Error() string {
	msg := fmt.Sprintf("schema replication failed at %s", e.Step)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	msg += fmt.Sprintf(": exit code %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ReplicationError) Unwrap() error {
	return e.Err
}

// CutoverError wraps a failure inside the locked phase. State is the last state
// the coordinator reached before the failure.
type CutoverError struct {
	State State
	Err   error
}

func (e *CutoverError) Error() string {
	return fmt.Sprintf("cutover failed after %s: %v", e.State, e.Err)
}

func (e *CutoverError) Unwrap() error {
	return e.Err
}
