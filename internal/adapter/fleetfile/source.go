// Package fleetfile serves machines and their event histories from a
// directory of machine YAML documents.
package fleetfile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nwcai/pm-rul/internal/machine"
)

type entry struct {
	machine machine.Machine
	events  []machine.EventRecord
}

// Source is an in-memory data source backed by a fleet directory
type Source struct {
	dir       string
	validator *machine.Validator

	mu       sync.RWMutex
	machines map[string]entry
	order    []string
}

// NewSource loads and validates every machine document in dir
func NewSource(dir string) (*Source, error) {
	validator, err := machine.NewValidator()
	if err != nil {
		return nil, err
	}

	s := &Source{
		dir:       dir,
		validator: validator,
		machines:  make(map[string]entry),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewEmptySource creates a source with no backing directory. Documents are
// added with Add.
func NewEmptySource() *Source {
	return &Source{machines: make(map[string]entry)}
}

// Dir returns the fleet directory
func (s *Source) Dir() string {
	return s.dir
}

// Reload re-reads the fleet directory. On any load or validation error the
// previously loaded fleet stays active.
func (s *Source) Reload() error {
	if s.dir == "" {
		return fmt.Errorf("fleet source has no directory")
	}

	docs, loadErrors := machine.LoadFromDirectory(s.dir)
	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load fleet: %d errors, first: %v", len(loadErrors), loadErrors[0])
	}

	if validationErrors := s.validator.Validate(docs); len(validationErrors) > 0 {
		for _, ve := range validationErrors {
			slog.Warn("fleet: invalid machine document", "file", ve.File, "path", ve.Path, "err", ve.Message)
		}
		return fmt.Errorf("fleet validation failed: %d errors, first: %v", len(validationErrors), validationErrors[0])
	}

	machines := make(map[string]entry, len(docs))
	order := make([]string, 0, len(docs))
	for _, d := range docs {
		m := d.Document.Machine()
		machines[m.ID] = entry{machine: m, events: d.Document.EventRecords()}
		order = append(order, m.ID)
	}
	slices.Sort(order)

	s.mu.Lock()
	s.machines = machines
	s.order = order
	s.mu.Unlock()

	slog.Info("fleet: loaded", "dir", s.dir, "machines", len(order))
	return nil
}

// Add registers a document directly, replacing any machine with the same id
func (s *Source) Add(doc *machine.Document) {
	m := doc.Machine()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.machines[m.ID]; !exists {
		s.order = append(s.order, m.ID)
		slices.Sort(s.order)
	}
	s.machines[m.ID] = entry{machine: m, events: doc.EventRecords()}
}

// Size returns the number of loaded machines
func (s *Source) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ListMachines returns every machine ordered by id
func (s *Source) ListMachines(ctx context.Context) ([]machine.Machine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]machine.Machine, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.machines[id].machine)
	}
	return result, nil
}

// GetMachine returns a single machine
func (s *Source) GetMachine(ctx context.Context, id string) (machine.Machine, error) {
	if err := ctx.Err(); err != nil {
		return machine.Machine{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.machines[id]
	if !ok {
		return machine.Machine{}, fmt.Errorf("%w: %s", machine.ErrNotFound, id)
	}
	return e.machine, nil
}

// ListEvents returns a copy of a machine's event records
func (s *Source) ListEvents(ctx context.Context, id string) ([]machine.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.machines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", machine.ErrNotFound, id)
	}
	return slices.Clone(e.events), nil
}
