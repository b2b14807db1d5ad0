// Package tenant makes cross-org data access structurally impossible: every
// persistence call goes through a Guard bound to exactly one org id, and the
// type system requires every guarded filter and row payload to carry that id.
package tenant

import (
	"context"
	"errors"
)

// Sentinel errors surfaced to callers when a caller-supplied filter or
// payload names a different org than the one the guard is bound to. Both are
// raised before any I/O; no partial mutation is possible. Callers must treat
// them as security failures, never swallow them.
var (
	// ErrCrossTenantFilter corresponds to the CROSS_TENANT_WHERE_BLOCKED code.
	ErrCrossTenantFilter = errors.New("CROSS_TENANT_WHERE_BLOCKED")
	// ErrCrossTenantData corresponds to the CROSS_TENANT_DATA_BLOCKED code.
	ErrCrossTenantData = errors.New("CROSS_TENANT_DATA_BLOCKED")
)

// Scoped is implemented (with pointer receivers) by every filter and row
// payload handled by a Guard. The guard reads OrgID to validate
// caller-supplied scope and calls SetOrgID to inject its bound org.
type Scoped interface {
	OrgID() string
	SetOrgID(id string)
}

// Filter is a Scoped query shape that can additionally be narrowed to a
// single row id, for Guard.FindByID.
type Filter interface {
	Scoped
	SetID(id string)
}

// Delegate is the persistence surface a Guard wraps: generic find/create/
// update/delete against filter shape PF and row payload shape PD. Delegates
// never see unscoped calls; the guard owns scoping. Mutating operations
// report affected-row counts so callers can distinguish no-match from
// success. Delegate errors propagate to the caller unchanged.
type Delegate[E any, PF Filter, PD Scoped] interface {
	FindFirst(ctx context.Context, filter PF) (*E, error)
	FindMany(ctx context.Context, filter PF) ([]*E, error)
	Create(ctx context.Context, data PD) (*E, error)
	UpdateMany(ctx context.Context, filter PF, data PD) (int64, error)
	DeleteMany(ctx context.Context, filter PF) (int64, error)
}

// Guard binds a Delegate to one fixed org id. Every operation injects that id
// into the filter and payload, after rejecting any explicit attempt to name a
// different org.
type Guard[E any, F any, D any, PF interface {
	Filter
	*F
}, PD interface {
	Scoped
	*D
}] struct {
	delegate Delegate[E, PF, PD]
	orgID    string
}

// Bind returns a Guard over delegate scoped to orgID. One guard serves one
// caller context; bind per request, not per process.
func Bind[E any, F any, D any, PF interface {
	Filter
	*F
}, PD interface {
	Scoped
	*D
}](delegate Delegate[E, PF, PD], orgID string) *Guard[E, F, D, PF, PD] {
	return &Guard[E, F, D, PF, PD]{delegate: delegate, orgID: orgID}
}

// Org returns the org id this guard is bound to.
func (g *Guard[E, F, D, PF, PD]) Org() string { return g.orgID }

func (g *Guard[E, F, D, PF, PD]) scope(s Scoped, sentinel error) error {
	if cur := s.OrgID(); cur != "" && cur != g.orgID {
		return sentinel
	}
	s.SetOrgID(g.orgID)
	return nil
}

// FindByID finds the single row with the given id inside the bound org.
// A row that exists under another org is indistinguishable from a missing
// row: both return (nil, nil).
func (g *Guard[E, F, D, PF, PD]) FindByID(ctx context.Context, id string) (*E, error) {
	var f F
	filter := PF(&f)
	filter.SetID(id)
	filter.SetOrgID(g.orgID)
	return g.delegate.FindFirst(ctx, filter)
}

// FindMany returns all rows matching filter inside the bound org.
func (g *Guard[E, F, D, PF, PD]) FindMany(ctx context.Context, filter PF) ([]*E, error) {
	if err := g.scope(filter, ErrCrossTenantFilter); err != nil {
		return nil, err
	}
	return g.delegate.FindMany(ctx, filter)
}

// Create inserts data into the bound org.
func (g *Guard[E, F, D, PF, PD]) Create(ctx context.Context, data PD) (*E, error) {
	if err := g.scope(data, ErrCrossTenantData); err != nil {
		return nil, err
	}
	return g.delegate.Create(ctx, data)
}

// UpdateMany applies data to all rows matching filter inside the bound org
// and returns the affected count. Filter scope is validated before payload
// scope; neither failure reaches the delegate.
func (g *Guard[E, F, D, PF, PD]) UpdateMany(ctx context.Context, filter PF, data PD) (int64, error) {
	if err := g.scope(filter, ErrCrossTenantFilter); err != nil {
		return 0, err
	}
	if err := g.scope(data, ErrCrossTenantData); err != nil {
		return 0, err
	}
	return g.delegate.UpdateMany(ctx, filter, data)
}

// DeleteMany removes all rows matching filter inside the bound org and
// returns the affected count.
func (g *Guard[E, F, D, PF, PD]) DeleteMany(ctx context.Context, filter PF) (int64, error) {
	if err := g.scope(filter, ErrCrossTenantFilter); err != nil {
		return 0, err
	}
	return g.delegate.DeleteMany(ctx, filter)
}
