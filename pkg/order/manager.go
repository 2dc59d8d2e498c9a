package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"xswap/pkg/types"
)

// Manager provides high-level operations on tracked orders
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a new order manager over store
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
	}
}

// WithClock overrides the time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Store returns the underlying record store
func (m *Manager) Store() Store {
	return m.store
}

// Open starts tracking a freshly submitted order
func (m *Manager) Open(rec *types.OrderRecord) (*types.OrderRecord, error) {
	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = types.OrderCreated
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("invalid order status %q", rec.Status)
	}

	now := m.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := m.store.Create(rec); err != nil {
		return nil, fmt.Errorf("failed to store order: %w", err)
	}

	return rec, nil
}

// Get returns a tracked order
func (m *Manager) Get(key string) (*types.OrderRecord, error) {
	return m.store.Get(key)
}

// ApplyReport merges a status report into the stored record and writes the
// whole record back. Reports for a record already in a terminal status are
// ignored; changed is false in that case.
func (m *Manager) ApplyReport(key string, report types.StatusReport, progress int) (rec *types.OrderRecord, changed bool, err error) {
	if !report.Status.Valid() {
		return nil, false, fmt.Errorf("invalid order status %q", report.Status)
	}

	rec, err = m.store.Get(key)
	if err != nil {
		return nil, false, err
	}
	if rec.IsTerminal() {
		return rec, false, nil
	}

	now := m.now()
	if !Merge(rec, report, progress, now) {
		return rec, false, nil
	}

	if err := m.store.Update(rec); err != nil {
		return nil, false, fmt.Errorf("failed to update order: %w", err)
	}

	return rec, true, nil
}

// Merge applies report and progress to rec in place and reports whether
// anything changed. A record in a terminal status is left untouched.
func Merge(rec *types.OrderRecord, report types.StatusReport, progress int, at time.Time) bool {
	if rec.IsTerminal() {
		return false
	}

	changed := rec.ApplyStatus(report.Status, at)
	if rec.Progress != progress {
		rec.Progress = progress
		changed = true
	}
	if !slices.Equal(report.Fills, rec.Fills) {
		rec.Fills = append([]types.Fill(nil), report.Fills...)
		changed = true
	}
	if report.SrcTxHash != "" && report.SrcTxHash != rec.SrcTxHash {
		rec.SrcTxHash = report.SrcTxHash
		changed = true
	}
	if report.DstTxHash != "" && report.DstTxHash != rec.DstTxHash {
		rec.DstTxHash = report.DstTxHash
		changed = true
	}

	if changed {
		rec.UpdatedAt = at
	}
	return changed
}

// Dismiss stops tracking an order
func (m *Manager) Dismiss(key string) error {
	if err := m.store.Delete(key); err != nil {
		return fmt.Errorf("failed to dismiss order: %w", err)
	}
	return nil
}

// List returns tracked orders matching filter
func (m *Manager) List(filter Filter) ([]*types.OrderRecord, error) {
	return m.store.List(filter)
}

// Active returns orders that have not reached a terminal status
func (m *Manager) Active(filter Filter) ([]*types.OrderRecord, error) {
	filter.ActiveOnly = true
	return m.store.List(filter)
}
