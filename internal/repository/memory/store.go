// Package memory is an in-process ApplicationRepository. Transactions work on
// a private copy of the touched rows and publish them on commit; one mutex
// serializes writers, mirroring a single-writer database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	txMu         sync.Mutex
	applications map[uuid.UUID]*domain.Application
	installments map[uuid.UUID]*domain.Installment
	byApp        map[uuid.UUID][]uuid.UUID
}

func NewStore() *Store {
	return &Store{
		applications: make(map[uuid.UUID]*domain.Application),
		installments: make(map[uuid.UUID]*domain.Installment),
		byApp:        make(map[uuid.UUID][]uuid.UUID),
	}
}

var _ repository.ApplicationRepository = (*Store)(nil)

func (s *Store) Create(_ context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *app
	s.applications[app.ID] = &c
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.application(id)
}

func (s *Store) List(_ context.Context, filter domain.ApplicationFilter) ([]*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.Application{}
	for _, app := range s.applications {
		if app.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		c := *app
		matched = append(matched, &c)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	if filter.Offset >= len(matched) {
		return []*domain.Application{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *Store) GetStats(_ context.Context, ownerID string) (*domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.Stats{OwnerID: ownerID}
	for _, app := range s.applications {
		if app.OwnerID != ownerID {
			continue
		}
		stats.TotalApplications++
		stats.TotalPaid += app.TotalPaid
		stats.TotalLateFees += app.TotalLateFees

		switch app.Status {
		case domain.ApplicationStatusPending:
			stats.Pending++
		case domain.ApplicationStatusActive:
			stats.Active++
			stats.TotalFinanced += app.FinancedAmount
			stats.RemainingBalance += app.RemainingBalance
		case domain.ApplicationStatusCompleted:
			stats.Completed++
			stats.TotalFinanced += app.FinancedAmount
		case domain.ApplicationStatusDefaulted:
			stats.Defaulted++
		case domain.ApplicationStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (s *Store) GetInstallment(_ context.Context, id uuid.UUID) (*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.installment(id)
}

func (s *Store) ListInstallments(_ context.Context, applicationID uuid.UUID) ([]*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listInstallments(applicationID), nil
}

func (s *Store) ListOverdueCandidates(_ context.Context, asOf time.Time, after *domain.SweepCursor, limit int) ([]*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := []*domain.Installment{}
	for _, inst := range s.installments {
		if !inst.Status.IsOutstanding() || inst.OverdueDate.After(asOf) {
			continue
		}
		app := s.applications[inst.ApplicationID]
		if app == nil || (app.Status != domain.ApplicationStatusActive && app.Status != domain.ApplicationStatusDefaulted) {
			continue
		}
		if after != nil && !cursorBefore(*after, inst) {
			continue
		}
		c := *inst
		candidates = append(candidates, &c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return installmentLess(candidates[i], candidates[j])
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) ListUpcoming(_ context.Context, ownerID string, from, to time.Time) ([]*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	upcoming := []*domain.Installment{}
	for _, inst := range s.installments {
		if !inst.Status.IsOutstanding() || inst.DueDate.Before(from) || !inst.DueDate.Before(to) {
			continue
		}
		app := s.applications[inst.ApplicationID]
		if app == nil || app.Status != domain.ApplicationStatusActive {
			continue
		}
		if ownerID != "" && app.OwnerID != ownerID {
			continue
		}
		c := *inst
		upcoming = append(upcoming, &c)
	}

	sort.Slice(upcoming, func(i, j int) bool {
		if !upcoming[i].DueDate.Equal(upcoming[j].DueDate) {
			return upcoming[i].DueDate.Before(upcoming[j].DueDate)
		}
		return upcoming[i].ID.String() < upcoming[j].ID.String()
	})
	return upcoming, nil
}

// WithinTx serializes transactions and applies fn's writes only if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.TxRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &tx{
		store:        s,
		applications: make(map[uuid.UUID]*domain.Application),
		installments: make(map[uuid.UUID]*domain.Installment),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) application(id uuid.UUID) (*domain.Application, error) {
	app, ok := s.applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *app
	return &c, nil
}

func (s *Store) installment(id uuid.UUID) (*domain.Installment, error) {
	inst, ok := s.installments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *inst
	return &c, nil
}

func (s *Store) listInstallments(applicationID uuid.UUID) []*domain.Installment {
	ids := s.byApp[applicationID]
	installments := make([]*domain.Installment, 0, len(ids))
	for _, id := range ids {
		c := *s.installments[id]
		installments = append(installments, &c)
	}
	sort.Slice(installments, func(i, j int) bool {
		return installments[i].InstallmentNumber < installments[j].InstallmentNumber
	})
	return installments
}

func cursorBefore(cursor domain.SweepCursor, inst *domain.Installment) bool {
	if !inst.OverdueDate.Equal(cursor.OverdueDate) {
		return inst.OverdueDate.After(cursor.OverdueDate)
	}
	return strings.Compare(inst.ID.String(), cursor.ID.String()) > 0
}

func installmentLess(a, b *domain.Installment) bool {
	if !a.OverdueDate.Equal(b.OverdueDate) {
		return a.OverdueDate.Before(b.OverdueDate)
	}
	return a.ID.String() < b.ID.String()
}

// tx buffers writes; reads see the buffer first, then the committed store.
type tx struct {
	store        *Store
	applications map[uuid.UUID]*domain.Application
	installments map[uuid.UUID]*domain.Installment
	created      []*domain.Installment
}

func (t *tx) LockApplication(_ context.Context, id uuid.UUID) (*domain.Application, error) {
	if app, ok := t.applications[id]; ok {
		c := *app
		return &c, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.application(id)
}

func (t *tx) LockInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	return t.GetInstallment(ctx, id)
}

func (t *tx) GetInstallment(_ context.Context, id uuid.UUID) (*domain.Installment, error) {
	if inst, ok := t.installments[id]; ok {
		c := *inst
		return &c, nil
	}
	for _, inst := range t.created {
		if inst.ID == id {
			c := *inst
			return &c, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.installment(id)
}

func (t *tx) ListInstallments(_ context.Context, applicationID uuid.UUID) ([]*domain.Installment, error) {
	t.store.mu.RLock()
	installments := t.store.listInstallments(applicationID)
	t.store.mu.RUnlock()

	for _, inst := range t.created {
		if inst.ApplicationID == applicationID {
			c := *inst
			installments = append(installments, &c)
		}
	}
	for i, inst := range installments {
		if pending, ok := t.installments[inst.ID]; ok {
			c := *pending
			installments[i] = &c
		}
	}
	sort.Slice(installments, func(i, j int) bool {
		return installments[i].InstallmentNumber < installments[j].InstallmentNumber
	})
	return installments, nil
}

func (t *tx) UpdateApplication(_ context.Context, app *domain.Application) error {
	if _, ok := t.applications[app.ID]; !ok {
		t.store.mu.RLock()
		_, exists := t.store.applications[app.ID]
		t.store.mu.RUnlock()
		if !exists {
			return repository.ErrNotFound
		}
	}
	c := *app
	t.applications[app.ID] = &c
	return nil
}

func (t *tx) CreateInstallments(_ context.Context, installments []*domain.Installment) error {
	for _, inst := range installments {
		c := *inst
		t.created = append(t.created, &c)
	}
	return nil
}

func (t *tx) UpdateInstallment(_ context.Context, inst *domain.Installment) error {
	if _, ok := t.installments[inst.ID]; !ok && !t.isCreated(inst.ID) {
		t.store.mu.RLock()
		_, exists := t.store.installments[inst.ID]
		t.store.mu.RUnlock()
		if !exists {
			return repository.ErrNotFound
		}
	}
	c := *inst
	t.installments[inst.ID] = &c
	return nil
}

func (t *tx) isCreated(id uuid.UUID) bool {
	for _, inst := range t.created {
		if inst.ID == id {
			return true
		}
	}
	return false
}

func (t *tx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, inst := range t.created {
		t.store.installments[inst.ID] = inst
		t.store.byApp[inst.ApplicationID] = append(t.store.byApp[inst.ApplicationID], inst.ID)
	}
	for id, inst := range t.installments {
		t.store.installments[id] = inst
	}
	for id, app := range t.applications {
		t.store.applications[id] = app
	}
}
