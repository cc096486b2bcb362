package corebridge

import (
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/history"
)

type ReverseRequest struct {
	// RunID selects the forward run to undo. Empty means the latest run
	// that moved the pointer.
	RunID string `json:"runId,omitempty"`
}

type PointerView struct {
	ActiveKey  string `json:"activeKey"`
	StagingKey string `json:"stagingKey"`
	Active     string `json:"active"`
	Staging    string `json:"staging"`
	EnvFile    string `json:"envFile"`
}

type StatusView struct {
	Pointer   PointerView  `json:"pointer"`
	ActiveRun *history.Run `json:"activeRun,omitempty"`
	LastRun   *history.Run `json:"lastRun,omitempty"`
	Tables    []string     `json:"tables"`
}
