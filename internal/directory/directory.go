// Package directory is the read-only boundary to the campus directory
// (students, staff, departments, hostels). Directory CRUD is owned by another
// system; this service only needs the handful of lookups below.
package directory

import (
	"context"
	"sync"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// StudentProfile is the slice of the directory record the pass lifecycle
// needs. Trust score and cooldown state live in the trust ledger, not here.
type StudentProfile struct {
	ID           domain.StudentID
	Category     domain.StudentCategory
	MentorID     domain.StaffID
	DepartmentID domain.DepartmentID
	HostelID     domain.HostelID // nil uuid for day scholars
	Active       bool
	PassBlocked  bool
}

// Service answers directory lookups.
type Service interface {
	Student(ctx context.Context, id domain.StudentID) (StudentProfile, error)
	DepartmentHead(ctx context.Context, id domain.DepartmentID) (domain.StaffID, error)
	HostelWarden(ctx context.Context, id domain.HostelID) (domain.StaffID, error)
}

// InMemory is a directory fixture for tests and for running without the
// campus directory wired up.
type InMemory struct {
	mu       sync.RWMutex
	students map[domain.StudentID]StudentProfile
	heads    map[domain.DepartmentID]domain.StaffID
	wardens  map[domain.HostelID]domain.StaffID
}

func NewInMemory() *InMemory {
	return &InMemory{
		students: make(map[domain.StudentID]StudentProfile),
		heads:    make(map[domain.DepartmentID]domain.StaffID),
		wardens:  make(map[domain.HostelID]domain.StaffID),
	}
}

func (d *InMemory) PutStudent(profile StudentProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[profile.ID] = profile
}

func (d *InMemory) PutDepartmentHead(id domain.DepartmentID, head domain.StaffID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heads[id] = head
}

func (d *InMemory) PutHostelWarden(id domain.HostelID, warden domain.StaffID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wardens[id] = warden
}

func (d *InMemory) Student(_ context.Context, id domain.StudentID) (StudentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.students[id]; ok {
		return p, nil
	}
	return StudentProfile{}, sentinel.ErrNotFound
}

func (d *InMemory) DepartmentHead(_ context.Context, id domain.DepartmentID) (domain.StaffID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.heads[id]; ok {
		return s, nil
	}
	return domain.StaffID{}, sentinel.ErrNotFound
}

func (d *InMemory) HostelWarden(_ context.Context, id domain.HostelID) (domain.StaffID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.wardens[id]; ok {
		return s, nil
	}
	return domain.StaffID{}, sentinel.ErrNotFound
}
