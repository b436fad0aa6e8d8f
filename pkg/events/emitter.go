// Package events turns committed identify outcomes into contact lifecycle events
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/kafka"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const (
	ContactCreated = "contact.created"
	ContactLinked  = "contact.linked"
	ClusterMerged  = "cluster.merged"
)

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	PublishContactEvents(ctx context.Context, events []*kafka.ContactEvent) error
}

// Emitter publishes one event per change an identify call committed
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// OnIdentify implements identity.Observer.
func (e *Emitter) OnIdentify(ctx context.Context, outcome identity.Outcome) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OnIdentify")
	defer span.End()

	batch := Build(outcome)
	if len(batch) == 0 {
		return nil
	}

	if err := e.publisher.PublishContactEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit contact events")
		return err
	}
	return nil
}

// Build derives the events for outcome. A merge is reported before the contact that caused it.
func Build(outcome identity.Outcome) []*kafka.ContactEvent {
	primaryID := outcome.Contact.PrimaryContactID
	batch := []*kafka.ContactEvent{}

	if outcome.Merge != nil && len(outcome.Merge.Demoted) > 0 {
		batch = append(batch, &kafka.ContactEvent{
			EventType:   ClusterMerged,
			ContactID:   outcome.Merge.WinnerID,
			PrimaryID:   primaryID,
			DemotedIDs:  outcome.Merge.Demoted,
			RelinkedIDs: outcome.Merge.Relinked,
		})
	}

	if created := outcome.Created; created != nil {
		eventType := ContactLinked
		if created.IsPrimary() {
			eventType = ContactCreated
		}
		batch = append(batch, &kafka.ContactEvent{
			EventType:      eventType,
			ContactID:      created.ID,
			PrimaryID:      primaryID,
			Email:          created.Email,
			PhoneNumber:    created.PhoneNumber,
			LinkPrecedence: string(created.LinkPrecedence),
			Timestamp:      created.CreatedAt,
		})
	}

	return batch
}

