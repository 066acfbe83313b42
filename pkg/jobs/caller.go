package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

// Caller identifies who is asking for a job operation
type Caller struct {
	UserID   string
	TenantID string
	// Platform callers are not scoped to a tenant
	Platform bool
}

// SystemCaller is used by operator tooling
func SystemCaller() Caller {
	return Caller{Platform: true}
}

// CallerFromContext reads the caller that the request middleware attached to ctx
func CallerFromContext(ctx context.Context) Caller {
	return Caller{
		UserID:   appctx.GetUserID(ctx),
		TenantID: appctx.GetTenantID(ctx),
		Platform: appctx.IsPlatform(ctx),
	}
}

// Actor is the audit actor for the caller
func (c Caller) Actor() string {
	if c.UserID == "" {
		return models.AuditActorSystem
	}
	return c.UserID
}

// TenantResolver resolves the active tenant of a non-platform caller
type TenantResolver interface {
	ResolveActiveTenant(ctx context.Context, caller Caller) (uuid.UUID, error)
}

// TenantResolverFunc adapts a function to TenantResolver
type TenantResolverFunc func(ctx context.Context, caller Caller) (uuid.UUID, error)

func (f TenantResolverFunc) ResolveActiveTenant(ctx context.Context, caller Caller) (uuid.UUID, error) {
	return f(ctx, caller)
}

// CallerTenantResolver uses the tenant id the caller carries
type CallerTenantResolver struct{}

func (CallerTenantResolver) ResolveActiveTenant(_ context.Context, caller Caller) (uuid.UUID, error) {
	tenant := strings.TrimSpace(caller.TenantID)
	if tenant == "" {
		return uuid.Nil, fmt.Errorf("caller has no active tenant")
	}
	id, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil, fmt.Errorf("active tenant is not a valid id")
	}
	return id, nil
}

// authorize checks that the caller may act on a record owned by (scope, ownerID).
// A mismatch is reported as not found so record existence is never leaked across tenants.
func (m *Manager) authorize(ctx context.Context, caller Caller, scope models.OwnerScope, ownerID uuid.UUID, notFound error) error {
	if caller.Platform {
		return nil
	}

	tenantID, err := m.tenants.ResolveActiveTenant(ctx, caller)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Debug("Could not resolve active tenant")
		return notFound
	}

	if scope != models.OwnerScopeAgency || ownerID != tenantID {
		return notFound
	}
	return nil
}

// tenantFilter scopes a job listing to the caller's tenant
func (m *Manager) tenantFilter(ctx context.Context, caller Caller, filter *repositories.JobFilter) error {
	if caller.Platform {
		return nil
	}

	tenantID, err := m.tenants.ResolveActiveTenant(ctx, caller)
	if err != nil {
		return repositories.BadRequest("an active tenant is required")
	}

	scope := models.OwnerScopeAgency
	filter.OwnerScope = &scope
	filter.OwnerID = &tenantID
	return nil
}
