package identity

import (
	"context"

	"github.com/Ramsey-B/iris/pkg/models"
)

const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeMerged           = "merged"
	OutcomeUnchanged        = "unchanged"
)

// Outcome describes what one committed Identify call did.
type Outcome struct {
	Email *string
	Phone *string
	// Created is the row returned by Create, which may be a pre-existing duplicate.
	Created *models.Contact
	Merge   *MergeResult
	// Cluster is the final cluster, oldest first.
	Cluster []models.Contact
	Contact models.ConsolidatedContact
}

// Kind classifies the outcome. A merge wins over a creation.
func (o Outcome) Kind() string {
	switch {
	case o.Merge != nil && len(o.Merge.Demoted) > 0:
		return OutcomeMerged
	case o.Created != nil && o.Created.IsPrimary():
		return OutcomeCreatedPrimary
	case o.Created != nil:
		return OutcomeCreatedSecondary
	default:
		return OutcomeUnchanged
	}
}

// Observer is notified after every committed Identify. Errors are logged and never fail the call.
type Observer interface {
	OnIdentify(ctx context.Context, outcome Outcome) error
}

type ObserverFunc func(ctx context.Context, outcome Outcome) error

func (f ObserverFunc) OnIdentify(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}
