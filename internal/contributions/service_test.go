package contributions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcastano/evdex-backend/internal/policy"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

func member(id uuid.UUID) policy.Actor {
	return policy.Actor{UserID: id, Role: enums.UserRoleMember}
}

func moderator(id uuid.UUID) policy.Actor {
	return policy.Actor{UserID: id, Role: enums.UserRoleModerator}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected typed error, got %v", err)
	require.Equal(t, code, appErr.Code())
}

func TestSubmitNewContribution(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	submitter := uuid.New()

	dto, err := f.svc.Submit(ctx, member(submitter), SubmitContributionInput{
		ChangeType:  enums.ChangeTypeNew,
		VehicleData: vehiclePayload("Tesla", "Model 3", 2023, map[string]any{"battery_capacity_kwh": 60}),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusPending, dto.Contribution.Status)
	assert.Equal(t, submitter, dto.Contribution.UserID)

	// Submission queues a domain event in the same transaction.
	var eventCount int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.OutboxEventContributionSubmitted).
		Count(&eventCount).Error)
	assert.EqualValues(t, 1, eventCount)
}

func TestSubmitDuplicateNewIsRejected(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	existing := f.seedVehicle(t, "Tesla", "Model 3", 2023)

	_, err := f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:  enums.ChangeTypeNew,
		VehicleData: vehiclePayload("tesla", "model 3", 2023, map[string]any{"battery_capacity_kwh": 60}),
	})
	requireCode(t, err, pkgerrors.CodeConflict)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	existingVehicle, ok := details["existing_vehicle"].(*models.Vehicle)
	require.True(t, ok)
	assert.Equal(t, existing.ID, existingVehicle.ID)

	// Different make, otherwise identical: not a duplicate.
	dto, err := f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:  enums.ChangeTypeNew,
		VehicleData: vehiclePayload("Polestar", "Model 3", 2023, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusPending, dto.Contribution.Status)
}

func TestSubmitUpdateRequiresResolvableTarget(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	missing := uuid.New()
	_, err := f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:      enums.ChangeTypeUpdate,
		TargetVehicleID: &missing,
		VehicleData:     vehiclePayload("Kia", "EV6", 2023, nil),
	})
	requireCode(t, err, pkgerrors.CodeNotFound)

	vehicle := f.seedVehicle(t, "Kia", "EV6", 2023)
	dto, err := f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:      enums.ChangeTypeUpdate,
		TargetVehicleID: &vehicle.ID,
		VehicleData:     vehiclePayload("Kia", "EV6", 2023, map[string]any{"range_km": 500}),
	})
	require.NoError(t, err)
	require.NotNil(t, dto.Contribution.TargetVehicleID)
	assert.Equal(t, vehicle.ID, *dto.Contribution.TargetVehicleID)
}

func TestSubmitValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:  enums.ChangeTypeNew,
		VehicleData: vehiclePayload("", "Model 3", 2023, nil),
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:  enums.ChangeTypeUpdate,
		VehicleData: vehiclePayload("Kia", "EV6", 2023, nil),
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestEditOwnerOnlyWhilePending(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "Rivian", "model": "R1T", "year": 2024})

	_, err := f.svc.Edit(ctx, member(uuid.New()), contribution.ID, EditContributionInput{
		VehicleData: vehiclePayload("Rivian", "R1T", 2025, nil),
	})
	requireCode(t, err, pkgerrors.CodeForbidden)

	dto, err := f.svc.Edit(ctx, member(owner), contribution.ID, EditContributionInput{
		VehicleData: vehiclePayload("Rivian", "R1T", 2025, nil),
	})
	require.NoError(t, err)

	candidate, err := parseCandidate(dto.Contribution.VehicleData)
	require.NoError(t, err)
	assert.Equal(t, 2025, candidate.Year)
}

func TestCancelThenApproveFailsPrecondition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "Lucid", "model": "Air", "year": 2024})

	dto, err := f.svc.Cancel(ctx, member(owner), contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusCancelled, dto.Contribution.Status)
	assert.NotNil(t, dto.Contribution.CancelledAt)

	_, err = f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)
}

func TestMonotonicTerminalState(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "Lucid", "model": "Gravity", "year": 2025})

	_, err := f.svc.Reject(ctx, moderator(uuid.New()), contribution.ID, RejectInput{
		Comment: "needs a source for the specs",
	})
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, member(owner), contribution.ID, EditContributionInput{
		VehicleData: vehiclePayload("Lucid", "Gravity", 2026, nil),
	})
	requireCode(t, err, pkgerrors.CodePrecondition)

	_, err = f.svc.Cancel(ctx, member(owner), contribution.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)

	_, err = f.svc.Vote(ctx, member(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)

	_, err = f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)

	reloaded, err := f.repo.FindByID(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusRejected, reloaded.Status)
	require.NotNil(t, reloaded.RejectionComment)
	assert.Equal(t, "needs a source for the specs", *reloaded.RejectionComment)
}

func TestVoteUniquenessAndSelfVoteBlock(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "VW", "model": "ID.4", "year": 2024})

	_, err := f.svc.Vote(ctx, member(owner), contribution.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	voter := uuid.New()
	dto, err := f.svc.Vote(ctx, member(voter), contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dto.VoteCount)

	_, err = f.svc.Vote(ctx, member(voter), contribution.ID)
	requireCode(t, err, pkgerrors.CodeConflict)

	dto, err = f.svc.Vote(ctx, member(uuid.New()), contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, dto.VoteCount)
}

func TestApproveUpdateAppliesFullReplaceAndCredits(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t, "Kia", "EV6", 2023)
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeUpdate, &vehicle.ID,
		map[string]any{"make": "Kia", "model": "EV6", "year": 2023, "range_km": 528})

	dto, err := f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusApproved, dto.Contribution.Status)
	assert.NotNil(t, dto.Contribution.ApprovedAt)

	updated, err := f.catalog.FindByID(ctx, vehicle.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.RangeKM)
	assert.Equal(t, 528, *updated.RangeKM)

	balance, err := f.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	var eventCount int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.OutboxEventContributionApproved).
		Count(&eventCount).Error)
	assert.EqualValues(t, 1, eventCount)
}

func TestApproveNewInsertsVehicle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "Fisker", "model": "Ocean", "year": 2024, "battery_capacity_kwh": 80.5})

	_, err := f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	require.NoError(t, err)

	inserted, err := f.catalog.FindByIdentity(ctx, "fisker", "ocean", 2024)
	require.NoError(t, err)
	require.NotNil(t, inserted)
	require.NotNil(t, inserted.BatteryCapacityKWH)
	assert.InDelta(t, 80.5, *inserted.BatteryCapacityKWH, 0.001)
}

func TestSingleApprovalEffect(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "Honda", "model": "Prologue", "year": 2024})

	_, err := f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)

	var vehicleCount int64
	require.NoError(t, f.db.Model(&models.Vehicle{}).Count(&vehicleCount).Error)
	assert.EqualValues(t, 1, vehicleCount)

	balance, err := f.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestApproveOrphanedUpdateLeavesContributionPending(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t, "Kia", "Niro EV", 2023)
	owner := uuid.New()
	contribution := f.seedContribution(t, owner, enums.ChangeTypeUpdate, &vehicle.ID,
		map[string]any{"make": "Kia", "model": "Niro EV", "year": 2023, "range_km": 460})

	require.NoError(t, f.db.Where("id = ?", vehicle.ID).Delete(&models.Vehicle{}).Error)

	_, err := f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	// The rollback leaves the contribution pending for the reconciler.
	reloaded, err := f.repo.FindByID(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusPending, reloaded.Status)

	balance, err := f.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestRejectRequiresComment(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	contribution := f.seedContribution(t, uuid.New(), enums.ChangeTypeNew, nil,
		map[string]any{"make": "Mini", "model": "Cooper SE", "year": 2024})

	_, err := f.svc.Reject(ctx, moderator(uuid.New()), contribution.ID, RejectInput{Comment: "too short"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Reject(ctx, member(uuid.New()), contribution.ID, RejectInput{
		Comment: "battery figures do not match any published source",
	})
	requireCode(t, err, pkgerrors.CodeForbidden)

	dto, err := f.svc.Reject(ctx, moderator(uuid.New()), contribution.ID, RejectInput{
		Comment: "battery figures do not match any published source",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusRejected, dto.Contribution.Status)
	assert.NotNil(t, dto.Contribution.RejectedAt)
}

func TestListPendingWithVoteCounts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	first := f.seedContribution(t, uuid.New(), enums.ChangeTypeNew, nil,
		map[string]any{"make": "BYD", "model": "Seal", "year": 2024})
	f.seedContribution(t, uuid.New(), enums.ChangeTypeNew, nil,
		map[string]any{"make": "BYD", "model": "Dolphin", "year": 2024})

	_, err := f.svc.Vote(ctx, member(uuid.New()), first.ID)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, member(uuid.New()), first.ID)
	require.NoError(t, err)

	result, err := f.svc.ListPending(ctx, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, result.Contributions, 2)

	counts := map[uuid.UUID]int{}
	for _, dto := range result.Contributions {
		counts[dto.Contribution.ID] = dto.VoteCount
	}
	assert.Equal(t, 2, counts[first.ID])
}

// The §-by-§ walkthrough scenario: duplicate rejection, voted update approval
// with credit, and a cancel that blocks a later approval.
func TestEndToEndModerationScenario(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedVehicle(t, "Tesla", "Model 3", 2023)
	target := f.seedVehicle(t, "Hyundai", "Kona Electric", 2023)

	_, err := f.svc.Submit(ctx, member(uuid.New()), SubmitContributionInput{
		ChangeType:  enums.ChangeTypeNew,
		VehicleData: vehiclePayload("Tesla", "Model 3", 2023, map[string]any{"battery_capacity_kwh": 60}),
	})
	requireCode(t, err, pkgerrors.CodeConflict)

	submitter := uuid.New()
	dto, err := f.svc.Submit(ctx, member(submitter), SubmitContributionInput{
		ChangeType:      enums.ChangeTypeUpdate,
		TargetVehicleID: &target.ID,
		VehicleData:     vehiclePayload("Hyundai", "Kona Electric", 2023, map[string]any{"range_km": 490}),
	})
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, member(uuid.New()), dto.Contribution.ID)
	require.NoError(t, err)
	voted, err := f.svc.Vote(ctx, member(uuid.New()), dto.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, voted.VoteCount)

	approved, err := f.svc.Approve(ctx, moderator(uuid.New()), dto.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusApproved, approved.Contribution.Status)

	updated, err := f.catalog.FindByID(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.RangeKM)
	assert.Equal(t, 490, *updated.RangeKM)

	balance, err := f.ledger.Balance(ctx, submitter)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	otherOwner := uuid.New()
	other := f.seedContribution(t, otherOwner, enums.ChangeTypeNew, nil,
		map[string]any{"make": "Hyundai", "model": "Ioniq 6", "year": 2024})
	cancelled, err := f.svc.Cancel(ctx, member(otherOwner), other.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusCancelled, cancelled.Contribution.Status)

	_, err = f.svc.Approve(ctx, moderator(uuid.New()), other.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)
}
