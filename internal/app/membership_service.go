package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

// MembershipService is the permission gate: every company-scoped operation in
// the catalog and attempt services goes through it.
type MembershipService struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewMembershipService(store Store, log *zap.Logger) *MembershipService {
	return &MembershipService{
		store: store,
		log:   log.With(zap.String("service", "membership")),
		now:   time.Now,
	}
}

// GetRole looks up the caller's role without locking.
func (s *MembershipService) GetRole(ctx context.Context, companyID, userID uuid.UUID) (domain.Role, error) {
	m, err := s.store.Memberships().Get(ctx, companyID, userID)
	if err != nil {
		return domain.RoleGuest, err
	}
	return m.Role, nil
}

// AssertPermissions fails with ErrNotAMember when no membership row exists and
// ErrForbidden when the row's role does not satisfy the requirement. The two
// kinds stay distinct so callers can tell "request to join" apart from
// "ask an admin".
func (s *MembershipService) AssertPermissions(ctx context.Context, companyID, userID uuid.UUID, required domain.Role, strict bool) error {
	role, err := s.GetRole(ctx, companyID, userID)
	if err != nil {
		return err
	}
	if !role.IsAuthorized(required, strict) {
		return domain.ErrForbidden
	}
	return nil
}

// HasPermissions is AssertPermissions with both failure kinds collapsed to
// false, for call sites where lacking access is a normal branch.
func (s *MembershipService) HasPermissions(ctx context.Context, companyID, userID uuid.UUID, required domain.Role, strict bool) bool {
	err := s.AssertPermissions(ctx, companyID, userID, required, strict)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrNotAMember) || errors.Is(err, domain.ErrForbidden) {
		return false
	}
	// Storage errors are not a permission verdict; log and deny.
	s.log.Warn("permission check failed", zap.Error(err))
	return false
}

// CreateCompany creates the tenant and its owner membership in one
// transaction.
func (s *MembershipService) CreateCompany(ctx context.Context, ownerID uuid.UUID, name, description string) (*domain.Company, error) {
	now := s.now()
	company := &domain.Company{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Companies().Create(ctx, company); err != nil {
			return err
		}
		return tx.Memberships().Create(ctx, &domain.Membership{
			CompanyID: company.ID,
			UserID:    ownerID,
			Role:      domain.RoleOwner,
			JoinedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("company created",
		zap.String("company_id", company.ID.String()),
		zap.String("owner_id", ownerID.String()))
	return company, nil
}

// AddMember adds userID at the given role. The actor needs ADMIN; granting
// anything above MEMBER needs OWNER.
func (s *MembershipService) AddMember(ctx context.Context, companyID, actorID, userID uuid.UUID, role domain.Role) (*domain.Membership, error) {
	required := domain.RoleAdmin
	if role.IsAuthorized(domain.RoleAdmin, false) {
		required = domain.RoleOwner
	}
	if err := s.AssertPermissions(ctx, companyID, actorID, required, false); err != nil {
		return nil, err
	}
	m := &domain.Membership{
		CompanyID: companyID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  s.now(),
	}
	if err := s.store.Memberships().Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateRole changes a member's role. Locks the target row so two concurrent
// role updates (or an update racing a leave) serialize, and refuses to demote
// the last owner.
func (s *MembershipService) UpdateRole(ctx context.Context, companyID, actorID, targetID uuid.UUID, role domain.Role) error {
	required := domain.RoleAdmin
	if role.IsAuthorized(domain.RoleAdmin, false) {
		required = domain.RoleOwner
	}
	if err := s.AssertPermissions(ctx, companyID, actorID, required, false); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx Store) error {
		target, err := tx.Memberships().GetForUpdate(ctx, companyID, targetID)
		if err != nil {
			return err
		}
		if target.Role == domain.RoleOwner && role != domain.RoleOwner {
			owners, err := tx.Memberships().CountWithRole(ctx, companyID, domain.RoleOwner)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return domain.Conflictf("company must retain an owner")
			}
		}
		return tx.Memberships().UpdateRole(ctx, companyID, targetID, role)
	})
}

// RemoveMember removes targetID from the company. A member may remove
// themselves (leave); removing someone else needs ADMIN, and removing an
// admin or owner needs OWNER. The last owner cannot be removed.
func (s *MembershipService) RemoveMember(ctx context.Context, companyID, actorID, targetID uuid.UUID) error {
	return s.store.InTx(ctx, func(tx Store) error {
		target, err := tx.Memberships().GetForUpdate(ctx, companyID, targetID)
		if err != nil {
			return err
		}
		if actorID != targetID {
			required := domain.RoleAdmin
			if target.Role.IsAuthorized(domain.RoleAdmin, false) {
				required = domain.RoleOwner
			}
			actor, err := tx.Memberships().Get(ctx, companyID, actorID)
			if err != nil {
				return err
			}
			if !actor.Role.IsAuthorized(required, false) {
				return domain.ErrForbidden
			}
		}
		if target.Role == domain.RoleOwner {
			owners, err := tx.Memberships().CountWithRole(ctx, companyID, domain.RoleOwner)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return domain.Conflictf("company must retain an owner")
			}
		}
		// Past attempts are kept for history; only the membership row goes.
		return tx.Memberships().Delete(ctx, companyID, targetID)
	})
}

// ListMembers returns the roster; any member may read it.
func (s *MembershipService) ListMembers(ctx context.Context, companyID, actorID uuid.UUID) ([]*domain.Membership, error) {
	if err := s.AssertPermissions(ctx, companyID, actorID, domain.RoleMember, false); err != nil {
		return nil, err
	}
	return s.store.Memberships().ListByCompany(ctx, companyID)
}
