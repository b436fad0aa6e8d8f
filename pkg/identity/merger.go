package identity

import (
	"context"
	"sort"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// MergeResult lists the rows a merge rewrote.
type MergeResult struct {
	WinnerID int64
	// Demoted holds the former primaries, in merge order.
	Demoted []int64
	// Relinked holds the former secondaries of the demoted primaries.
	Relinked []int64
}

// Merger folds losing clusters into the winner, keeping every cluster one level deep.
type Merger struct {
	store  Store
	logger ectologger.Logger
}

func NewMerger(store Store, logger ectologger.Logger) *Merger {
	return &Merger{store: store, logger: logger}
}

// Merge demotes each loser to a secondary of winner and re-points the loser's members to
// winner. Losers are processed oldest first. Nothing is deleted.
func (m *Merger) Merge(ctx context.Context, winner models.Contact, losers []models.Contact) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Merger.Merge")
	defer span.End()
	tracing.SetInt64(span, "winner_id", winner.ID)

	ordered := make([]models.Contact, len(losers))
	copy(ordered, losers)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Older(ordered[j])
	})

	link := models.UpdateContactRequest{
		LinkedID:       models.Int64Ptr(winner.ID),
		LinkPrecedence: models.LinkPrecedenceSecondary,
	}

	result := &MergeResult{WinnerID: winner.ID}
	for _, loser := range ordered {
		if loser.ID == winner.ID {
			continue
		}
		log := m.logger.WithContext(ctx).WithFields(map[string]any{
			"winner_id": winner.ID,
			"loser_id":  loser.ID,
		})

		members, err := m.store.FindClusterByPrimaryID(ctx, loser.ID)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}

		if _, err := m.store.Update(ctx, loser.ID, link); err != nil {
			log.WithError(err).Error("failed to demote losing primary")
			tracing.RecordError(span, err)
			return nil, err
		}

		children := ectolinq.Map(ectolinq.Filter(members, func(c models.Contact) bool {
			return c.ID != loser.ID
		}), func(c models.Contact) int64 {
			return c.ID
		})
		if err := m.store.UpdateMany(ctx, children, link); err != nil {
			log.WithError(err).Error("failed to relink secondaries of losing primary")
			tracing.RecordError(span, err)
			return nil, err
		}

		log.WithField("relinked", len(children)).Info("merged cluster into older primary")
		result.Demoted = append(result.Demoted, loser.ID)
		result.Relinked = append(result.Relinked, children...)
	}

	return result, nil
}
