package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/rs/zerolog"
)

// JobReader is the slice of the job repository the gateway needs to replay
// the last known status on connect.
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
}

// Gateway terminates per-client subscriptions. It replays the job's current
// status on connect, enforces terminal monotonicity, and ends the stream
// after the first terminal event.
type Gateway struct {
	broadcaster *Broadcaster
	jobs        JobReader
	log         zerolog.Logger
}

func NewGateway(b *Broadcaster, jobs JobReader, log zerolog.Logger) *Gateway {
	return &Gateway{broadcaster: b, jobs: jobs, log: log}
}

// Stream opens one client's event stream for jobID. The returned channel is
// closed after a terminal event has been delivered or when ctx is done.
// Lookup failures surface as the repository's not-found error.
func (g *Gateway) Stream(ctx context.Context, jobID uuid.UUID) (<-chan models.StatusEvent, error) {
	// Subscribe before the snapshot read so no transition falls in the gap.
	sub, cancel := g.broadcaster.Subscribe(jobID)

	job, err := g.jobs.Get(ctx, jobID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan models.StatusEvent, subscriberBuffer)
	go g.run(ctx, jobID, models.EventFromJob(job), sub, cancel, out)
	return out, nil
}

func (g *Gateway) run(
	ctx context.Context,
	jobID uuid.UUID,
	snapshot models.StatusEvent,
	sub <-chan models.StatusEvent,
	cancel func(),
	out chan<- models.StatusEvent,
) {
	defer cancel()
	defer close(out)

	var lastDelivered time.Time

	deliver := func(ev models.StatusEvent) bool {
		select {
		case out <- ev:
			lastDelivered = ev.Timestamp
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !deliver(snapshot) {
		return
	}
	if snapshot.Status.IsTerminal() {
		// Late subscriber: exactly one event, the terminal one.
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			// Non-terminal events are last-write-wins by timestamp;
			// stale duplicates and reorders are dropped.
			if !ev.Status.IsTerminal() && ev.Timestamp.Before(lastDelivered) {
				continue
			}
			if !deliver(ev) {
				return
			}
			if ev.Status.IsTerminal() {
				g.log.Debug().Str("job_id", jobID.String()).Str("status", string(ev.Status)).
					Msg("stream closed at terminal status")
				return
			}
		}
	}
}
