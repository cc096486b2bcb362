package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Project-Sylos/Sylos-Cutover/internal/cutover"
)

var ErrRunNotFound = errors.New("cutover run not found")

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is the persisted record of one up or down invocation.
type Run struct {
	ID               string              `yaml:"id" json:"id"`
	Direction        cutover.Direction   `yaml:"direction" json:"direction"`
	SourceDB         string              `yaml:"sourceDb" json:"sourceDb"`
	TargetDB         string              `yaml:"targetDb" json:"targetDb"`
	Status           string              `yaml:"status" json:"status"`
	State            cutover.State       `yaml:"state" json:"state"`
	FailedIn         cutover.State       `yaml:"failedIn,omitempty" json:"failedIn,omitempty"`
	Released         bool                `yaml:"released" json:"released"`
	PointerMoved     bool                `yaml:"pointerMoved" json:"pointerMoved"`
	Error            string              `yaml:"error,omitempty" json:"error,omitempty"`
	BookkeepingError string              `yaml:"bookkeepingError,omitempty" json:"bookkeepingError,omitempty"`
	Batch            int64               `yaml:"batch,omitempty" json:"batch,omitempty"`
	Tables           []cutover.TableCopy `yaml:"tables,omitempty" json:"tables,omitempty"`
	StartedAt        time.Time           `yaml:"startedAt" json:"startedAt"`
	CompletedAt      *time.Time          `yaml:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// Succeeded reports whether the run finished with the pointer moved.
func (r Run) Succeeded() bool {
	return r.Status == StatusCompleted
}

// Reversible reports whether the run is a forward run that left the
// application pointing at its target, even if it failed afterwards.
func (r Run) Reversible() bool {
	return r.Direction == cutover.DirectionUp && (r.Succeeded() || r.PointerMoved)
}

// File is the root of cutovers.yaml.
type File struct {
	Runs []Run `yaml:"runs"`
}

// Manager reads and writes the run history with whole-file atomic rewrites.
type Manager struct {
	dataDir string
	mu      sync.Mutex
}

func NewManager(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// Path returns the location of cutovers.yaml.
func (m *Manager) Path() string {
	return filepath.Join(m.dataDir, "cutovers.yaml")
}

// Save inserts run or replaces the stored run with the same ID.
func (m *Manager) Save(run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range file.Runs {
		if file.Runs[i].ID == run.ID {
			file.Runs[i] = run
			replaced = true
			break
		}
	}
	if !replaced {
		file.Runs = append(file.Runs, run)
	}

	return m.write(file)
}

func (m *Manager) Get(id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load()
	if err != nil {
		return Run{}, err
	}
	for _, run := range file.Runs {
		if run.ID == id {
			return run, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// List returns every run, newest first.
func (m *Manager) List() ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load()
	if err != nil {
		return nil, err
	}

	runs := append([]Run(nil), file.Runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// LatestUp returns the newest forward run, whatever its outcome.
func (m *Manager) LatestUp() (Run, bool, error) {
	return m.latest(func(run Run) bool { return run.Direction == cutover.DirectionUp })
}

// LatestReversible returns the newest forward run that moved the pointer.
func (m *Manager) LatestReversible() (Run, bool, error) {
	return m.latest(Run.Reversible)
}

func (m *Manager) latest(match func(Run) bool) (Run, bool, error) {
	runs, err := m.List()
	if err != nil {
		return Run{}, false, err
	}
	for _, run := range runs {
		if match(run) {
			return run, true, nil
		}
	}
	return Run{}, false, nil
}

func (m *Manager) load() (File, error) {
	data, err := os.ReadFile(m.Path())
	if errors.Is(err, os.ErrNotExist) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("failed to read history file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("failed to parse history file: %w", err)
	}
	return file, nil
}

func (m *Manager) write(file File) error {
	path := m.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}
	return nil
}

// FromReport builds the persisted view of a finished report.
func FromReport(id string, report cutover.Report) Run {
	run := Run{
		ID:           id,
		Direction:    report.Direction,
		SourceDB:     report.SourceDB,
		TargetDB:     report.TargetDB,
		State:        report.State,
		FailedIn:     report.FailedIn,
		Released:     report.Released,
		PointerMoved: report.PointerMoved,
		Batch:        report.Batch,
		Tables:       report.Tables,
		StartedAt:    report.StartedAt,
		Status:       StatusCompleted,
	}
	if report.Err != nil {
		run.Error = report.Err.Error()
	}
	if report.BookkeepingErr != nil {
		run.BookkeepingError = report.BookkeepingErr.Error()
	}
	if !report.Success {
		run.Status = StatusFailed
	}
	if !report.FinishedAt.IsZero() {
		finished := report.FinishedAt
		run.CompletedAt = &finished
	}
	return run
}
