// Package policy centralizes who may do what to a contribution. Handlers and
// services call these helpers instead of encoding role checks inline, so a
// rule change is a one-line edit here.
package policy

import (
	"github.com/google/uuid"

	apperrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// Actor is the authenticated principal extracted from the request context.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// CanEdit reports whether the actor may edit the contribution. Only the
// submitter may edit, and only while the contribution is still pending.
func CanEdit(actor Actor, submitterID uuid.UUID, status enums.ContributionStatus) error {
	if actor.UserID != submitterID {
		return apperrors.New(apperrors.CodeForbidden, "only the submitter may edit a contribution")
	}
	if status != enums.ContributionStatusPending {
		return apperrors.New(apperrors.CodePrecondition, "contribution is no longer pending")
	}
	return nil
}

// CanCancel reports whether the actor may cancel the contribution. Same rule
// as editing: submitter only, pending only.
func CanCancel(actor Actor, submitterID uuid.UUID, status enums.ContributionStatus) error {
	if actor.UserID != submitterID {
		return apperrors.New(apperrors.CodeForbidden, "only the submitter may cancel a contribution")
	}
	if status != enums.ContributionStatusPending {
		return apperrors.New(apperrors.CodePrecondition, "contribution is no longer pending")
	}
	return nil
}

// CanVote reports whether the actor may cast a peer vote on the contribution.
// Submitters cannot vote on their own work.
func CanVote(actor Actor, submitterID uuid.UUID, status enums.ContributionStatus) error {
	if actor.UserID == submitterID {
		return apperrors.New(apperrors.CodeForbidden, "voting on your own contribution is not allowed")
	}
	if status != enums.ContributionStatusPending {
		return apperrors.New(apperrors.CodePrecondition, "contribution is no longer pending")
	}
	return nil
}

// CanDecide reports whether the actor may approve or reject the contribution.
// Moderators may decide contributions they submitted themselves; votes are
// advisory and the moderator decision is already audited.
func CanDecide(actor Actor, status enums.ContributionStatus) error {
	if !actor.Role.CanModerate() {
		return apperrors.New(apperrors.CodeForbidden, "moderator role required")
	}
	if status != enums.ContributionStatusPending {
		return apperrors.New(apperrors.CodePrecondition, "contribution has already been decided")
	}
	return nil
}
