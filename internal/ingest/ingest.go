// Package ingest drives the feed pipeline: it pulls decoded MBO events
// from a Decoder, updates the book/market state, writes the tail cache,
// serializes and broadcasts each event, and paces itself according to
// configuration. Decoding the wire format itself is out of scope here,
// matching the split in the original implementation between an external
// decoder and this server.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/quantfeed/mbo-gateway/internal/broadcast"
	"github.com/quantfeed/mbo-gateway/internal/market"
	"github.com/quantfeed/mbo-gateway/internal/record"
	"github.com/quantfeed/mbo-gateway/internal/tailcache"
)

// Decoder yields successive MBO events. Next returns io.EOF when the
// underlying source is exhausted; any other error terminates the
// pipeline.
type Decoder interface {
	Next() (*record.MBOEvent, error)
}

// Metrics receives a callback for each successfully ingested event.
// *observability.MetricsProvider satisfies this implicitly; it is an
// interface here so the ingest package doesn't need to import
// pkg/observability just for this one method.
type Metrics interface {
	RecordIngestMessage(ctx context.Context)
}

// Pipeline wires a Decoder to the book/market state, the tail cache, and
// the broadcaster, pacing itself by SleepTimeUS between events.
type Pipeline struct {
	Decoder     Decoder
	Market      *market.Market
	TailCache   *tailcache.Cache
	Broadcaster *broadcast.Broadcaster
	SleepTimeUS uint64
	Metrics     Metrics // optional

	counter atomic.Uint64
	done    atomic.Bool
	runErr  atomic.Pointer[error]
}

// NewPipeline builds a Pipeline over the given components.
func NewPipeline(dec Decoder, m *market.Market, tc *tailcache.Cache, bc *broadcast.Broadcaster, sleepTimeUS uint64) *Pipeline {
	return &Pipeline{
		Decoder:     dec,
		Market:      m,
		TailCache:   tc,
		Broadcaster: bc,
		SleepTimeUS: sleepTimeUS,
	}
}

// MessageCount returns the running count of ingested events, for the
// rate monitor to sample and reset.
func (p *Pipeline) MessageCount() *atomic.Uint64 {
	return &p.counter
}

// Done reports whether Run has returned yet and, if so, the error it
// returned (nil on a clean EOF). It is meant to back a health check, not
// to be polled in a tight loop.
func (p *Pipeline) Done() (finished bool, err error) {
	if !p.done.Load() {
		return false, nil
	}
	if errPtr := p.runErr.Load(); errPtr != nil {
		return true, *errPtr
	}
	return true, nil
}

// Run drives the pipeline until the decoder is exhausted, its context is
// canceled, or a decode error occurs. It returns nil on a clean EOF and
// a non-nil error otherwise; in both cases the broadcaster is closed on
// return so subscribers can drain and exit.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	defer p.Broadcaster.Close()
	defer func() {
		if err != nil {
			p.runErr.Store(&err)
		}
		p.done.Store(true)
	}()

	var i uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, decErr := p.Decoder.Next()
		if decErr != nil {
			if errors.Is(decErr, io.EOF) {
				return nil
			}
			return decErr
		}

		p.Market.Apply(ev)
		p.TailCache.Put(i, ev)

		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		payload = append(payload, '\n')
		p.Broadcaster.Send(payload)

		p.counter.Add(1)
		i++

		if p.Metrics != nil {
			p.Metrics.RecordIngestMessage(ctx)
		}

		if p.SleepTimeUS > 0 {
			time.Sleep(time.Duration(p.SleepTimeUS) * time.Microsecond)
		}
	}
}
