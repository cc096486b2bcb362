package corebridge

import (
	"context"
	"errors"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/history"
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/runs"
	"github.com/Project-Sylos/Sylos-Cutover/internal/cutover"
)

var (
	ErrRunNotFound      = history.ErrRunNotFound
	ErrNothingToReverse = errors.New("no cutover has moved the pointer to reverse")
	ErrPointerStranded  = errors.New("a failed cutover left the application on its target database")
)

// Bridge is what the HTTP layer needs from the cutover service.
type Bridge interface {
	StartCutover(ctx context.Context) (history.Run, error)
	StartReverse(ctx context.Context, req ReverseRequest) (history.Run, error)
	GetRun(ctx context.Context, id string) (history.Run, error)
	ListRuns(ctx context.Context) ([]history.Run, error)
	SubscribeProgress(ctx context.Context, id string) (<-chan runs.ProgressEvent, func(), error)
	Pointer(ctx context.Context) (PointerView, error)
	Status(ctx context.Context) (StatusView, error)
	Plan(ctx context.Context) (cutover.Plan, error)
}
