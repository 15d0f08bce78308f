package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/harry0537/AstraBackup-sub001/internal/link"
)

// readIdle bounds the link-reader loop when no message is pending, so the
// loop tracks message arrival closely without busy-spinning.
const readIdle = 100 * time.Millisecond

// LinkSource is the slice of link.Link the aggregator needs; tests feed
// scripted messages through it.
type LinkSource interface {
	TryRecv() (link.Message, bool)
}

// Aggregator drains the control link into the shared record. With no link
// it idles in demo mode so the relay keeps shipping the last-known
// (zeroed) record on schedule.
type Aggregator struct {
	store *Store
	src   LinkSource // nil in demo mode
	log   *slog.Logger
}

func NewAggregator(store *Store, src LinkSource, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{store: store, src: src, log: log}
}

// Run is the link-reader loop. It exits when ctx is canceled; every other
// failure mode is absorbed so sibling loops keep functioning.
func (a *Aggregator) Run(ctx context.Context) {
	if a.src == nil {
		a.store.SetStatus(StatusDemo)
		a.log.Warn("control link unavailable, serving demo telemetry")
		<-ctx.Done()
		return
	}
	a.store.SetStatus(StatusOperational)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		drained := 0
		for {
			msg, ok := a.src.TryRecv()
			if !ok {
				break
			}
			a.store.Apply(msg)
			drained++
		}
		if drained == 0 {
			time.Sleep(readIdle)
		}
	}
}
