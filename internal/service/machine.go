package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

// MachineService exposes the machine registry. Machines are passive rows
// with a status flag; only the deposit flow touches last_usage.
type MachineService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewMachineService returns MachineService.
func NewMachineService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *MachineService {
	return &MachineService{repo: r, log: logger}
}

// List returns machines matching the filter, most recently used first.
func (s *MachineService) List(ctx context.Context, f repo.MachineFilter) ([]model.Machine, error) {
	if f.Status != "" && !model.ValidMachineStatus(f.Status) {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListMachines(ctx, f)
}

// Get returns one machine by id.
func (s *MachineService) Get(ctx context.Context, id uint64) (*model.Machine, error) {
	return s.repo.GetMachine(ctx, nil, id)
}

// Create registers a machine (admin).
func (s *MachineService) Create(ctx context.Context, m *model.Machine) error {
	if m.Status == "" {
		m.Status = model.MachineActive
	}
	if !model.ValidMachineStatus(m.Status) {
		return ErrInvalidStatus
	}
	return s.repo.CreateMachine(ctx, m)
}

// Update edits name, location and status (admin). last_usage is not
// client-writable.
func (s *MachineService) Update(ctx context.Context, id uint64, name, location, status string) (*model.Machine, error) {
	if status != "" && !model.ValidMachineStatus(status) {
		return nil, ErrInvalidStatus
	}
	m, err := s.repo.GetMachine(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		m.Name = name
	}
	if location != "" {
		m.Location = location
	}
	if status != "" {
		m.Status = status
	}
	if err := s.repo.SaveMachine(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete decommissions a machine (admin).
func (s *MachineService) Delete(ctx context.Context, id uint64) error {
	if _, err := s.repo.GetMachine(ctx, nil, id); err != nil {
		return err
	}
	return s.repo.DeleteMachine(ctx, id)
}
