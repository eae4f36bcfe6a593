package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"quizhub-service/internal/domain"
)

func TestAssertPermissionsDistinguishesAbsenceFromRank(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	member := e.addMember(t, companyID, owner, domain.RoleMember)

	err := e.memberships.AssertPermissions(ctx, companyID, uuid.New(), domain.RoleMember, false)
	if !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("stranger: expected not-a-member, got %v", err)
	}
	err = e.memberships.AssertPermissions(ctx, companyID, member, domain.RoleAdmin, false)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member needing admin: expected forbidden, got %v", err)
	}
	if err := e.memberships.AssertPermissions(ctx, companyID, member, domain.RoleMember, false); err != nil {
		t.Fatalf("member at member level: %v", err)
	}
	// Strict requires strictly above: an admin fails strict-admin, an owner
	// passes it.
	admin := e.addMember(t, companyID, owner, domain.RoleAdmin)
	if err := e.memberships.AssertPermissions(ctx, companyID, admin, domain.RoleAdmin, true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin under strict admin: expected forbidden, got %v", err)
	}
	if err := e.memberships.AssertPermissions(ctx, companyID, owner, domain.RoleAdmin, true); err != nil {
		t.Fatalf("owner under strict admin: %v", err)
	}
}

func TestHasPermissionsCollapsesDenials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	member := e.addMember(t, companyID, owner, domain.RoleMember)

	if e.memberships.HasPermissions(ctx, companyID, uuid.New(), domain.RoleMember, false) {
		t.Fatalf("stranger must be denied")
	}
	if e.memberships.HasPermissions(ctx, companyID, member, domain.RoleAdmin, false) {
		t.Fatalf("member must be denied admin")
	}
	if !e.memberships.HasPermissions(ctx, companyID, owner, domain.RoleOwner, false) {
		t.Fatalf("owner must pass")
	}
}

func TestGrantingAdminRequiresOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	admin := e.addMember(t, companyID, owner, domain.RoleAdmin)

	// An admin may add members but not mint other admins.
	if _, err := e.memberships.AddMember(ctx, companyID, admin, uuid.New(), domain.RoleMember); err != nil {
		t.Fatalf("admin adds member: %v", err)
	}
	if _, err := e.memberships.AddMember(ctx, companyID, admin, uuid.New(), domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin adds admin: expected forbidden, got %v", err)
	}
	if _, err := e.memberships.AddMember(ctx, companyID, owner, uuid.New(), domain.RoleAdmin); err != nil {
		t.Fatalf("owner adds admin: %v", err)
	}
}

func TestMembersCannotAddMembers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	member := e.addMember(t, companyID, owner, domain.RoleMember)

	if _, err := e.memberships.AddMember(ctx, companyID, member, uuid.New(), domain.RoleMember); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestLastOwnerIsProtected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)

	if err := e.memberships.UpdateRole(ctx, companyID, owner, owner, domain.RoleAdmin); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("demote last owner: expected conflict, got %v", err)
	}
	if err := e.memberships.RemoveMember(ctx, companyID, owner, owner); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("remove last owner: expected conflict, got %v", err)
	}

	// With a second owner in place both operations go through.
	second := e.addMember(t, companyID, owner, domain.RoleOwner)
	if err := e.memberships.UpdateRole(ctx, companyID, second, owner, domain.RoleAdmin); err != nil {
		t.Fatalf("demote with backup owner: %v", err)
	}
	role, err := e.memberships.GetRole(ctx, companyID, owner)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if role != domain.RoleAdmin {
		t.Fatalf("expected admin after demotion, got %s", role)
	}
}

func TestSelfLeaveAndRemovalGates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	admin := e.addMember(t, companyID, owner, domain.RoleAdmin)
	member := e.addMember(t, companyID, owner, domain.RoleMember)
	other := e.addMember(t, companyID, owner, domain.RoleMember)

	// A member cannot remove someone else.
	if err := e.memberships.RemoveMember(ctx, companyID, member, other); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member removes member: expected forbidden, got %v", err)
	}
	// An admin cannot remove a peer admin; that takes the owner.
	secondAdmin := e.addMember(t, companyID, owner, domain.RoleAdmin)
	if err := e.memberships.RemoveMember(ctx, companyID, admin, secondAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin removes admin: expected forbidden, got %v", err)
	}
	if err := e.memberships.RemoveMember(ctx, companyID, owner, secondAdmin); err != nil {
		t.Fatalf("owner removes admin: %v", err)
	}
	// Anyone may leave.
	if err := e.memberships.RemoveMember(ctx, companyID, member, member); err != nil {
		t.Fatalf("self leave: %v", err)
	}
	if _, err := e.memberships.GetRole(ctx, companyID, member); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected membership gone, got %v", err)
	}
}

func TestListMembersRequiresMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	e.addMember(t, companyID, owner, domain.RoleMember)

	if _, err := e.memberships.ListMembers(ctx, companyID, uuid.New()); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("stranger roster read: expected not-a-member, got %v", err)
	}
	roster, err := e.memberships.ListMembers(ctx, companyID, owner)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 members, got %d", len(roster))
	}
}
