package contributions

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
)

// vehicleIdentity is the case-folded (make, model, year) key used to decide
// whether two proposals concern the same logical vehicle.
type vehicleIdentity struct {
	Make  string
	Model string
	Year  int
}

func identityOf(make, model string, year int) vehicleIdentity {
	return vehicleIdentity{
		Make:  strings.ToLower(strings.TrimSpace(make)),
		Model: strings.ToLower(strings.TrimSpace(model)),
		Year:  year,
	}
}

func (v vehicleIdentity) matchesWithin(other vehicleIdentity, window int) bool {
	if v.Make != other.Make || v.Model != other.Model {
		return false
	}
	gap := v.Year - other.Year
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}

// Related produces the cluster of other pending contributions a moderator
// should review together with the seed. Membership is recomputed on every
// call since it changes as proposals resolve.
func (s *service) Related(ctx context.Context, id uuid.UUID) ([]ContributionDTO, error) {
	seed, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	seedIdentity, err := s.seedIdentity(ctx, seed)
	if err != nil {
		return nil, err
	}

	related := make(map[uuid.UUID]models.Contribution)

	// Updates aimed at the same vehicle as the seed.
	if seed.ChangeType == enums.ChangeTypeUpdate && seed.TargetVehicleID != nil {
		siblings, err := s.repo.ListPendingByTarget(ctx, *seed.TargetVehicleID, seed.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sibling updates")
		}
		for _, sibling := range siblings {
			related[sibling.ID] = sibling
		}
	}

	if seedIdentity != nil {
		window := s.settings.ClusterYearWindow

		// Pending NEW proposals for the same model generation.
		pendingNew, err := s.repo.ListPendingByChangeType(ctx, enums.ChangeTypeNew)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending new proposals")
		}
		for _, other := range pendingNew {
			if other.ID == seed.ID {
				continue
			}
			candidate, err := parseCandidate(other.VehicleData)
			if err != nil {
				continue
			}
			if seedIdentity.matchesWithin(identityOf(candidate.Make, candidate.Model, candidate.Year), window) {
				related[other.ID] = other
			}
		}

		// For a NEW seed, pending UPDATE proposals whose target vehicle
		// matches the seed's identity within the window. An UPDATE seed
		// clusters updates by shared target only, handled above.
		if seed.ChangeType == enums.ChangeTypeNew {
			pendingUpdates, err := s.repo.ListPendingByChangeType(ctx, enums.ChangeTypeUpdate)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending updates")
			}
			for _, other := range pendingUpdates {
				if other.ID == seed.ID || other.TargetVehicleID == nil {
					continue
				}
				if _, seen := related[other.ID]; seen {
					continue
				}
				target, err := s.catalog.FindByID(ctx, *other.TargetVehicleID)
				if err != nil {
					// Orphaned target; the reconciler owns it.
					continue
				}
				if seedIdentity.matchesWithin(identityOf(target.Make, target.Model, target.Year), window) {
					related[other.ID] = other
				}
			}
		}
	}

	rows := make([]models.Contribution, 0, len(related))
	for _, row := range related {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID.String() > rows[j].ID.String()
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	counts, err := s.repo.voteCounts(ctx, contributionIDs(rows))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count votes")
	}
	dtos := make([]ContributionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ContributionDTO{Contribution: row, VoteCount: counts[row.ID]})
	}
	return dtos, nil
}

// seedIdentity resolves the make/model/year the cluster keys on: the target
// vehicle's identity for updates, the candidate payload's for new proposals.
// An orphaned update seed clusters only by target id, so nil is returned.
func (s *service) seedIdentity(ctx context.Context, seed *models.Contribution) (*vehicleIdentity, error) {
	if seed.ChangeType == enums.ChangeTypeUpdate {
		if seed.TargetVehicleID == nil {
			return nil, nil
		}
		target, err := s.catalog.FindByID(ctx, *seed.TargetVehicleID)
		if err != nil {
			return nil, nil
		}
		identity := identityOf(target.Make, target.Model, target.Year)
		return &identity, nil
	}

	candidate, err := parseCandidate(seed.VehicleData)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	identity := identityOf(candidate.Make, candidate.Model, candidate.Year)
	return &identity, nil
}
