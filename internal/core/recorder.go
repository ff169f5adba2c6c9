// Package core turns committed domain events into the global,
// hash-chained event log and fans envelopes out to persistence,
// projections, and publishing.
package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"FlowLedger/internal/event"
	"FlowLedger/internal/observability"
)

// Output is one recorded envelope on its way downstream.
type Output struct {
	Envelope *event.Envelope
}

// Recorder assigns the global sequence and the state-hash chain to
// domain events as the ledger and dam commit them. It is the Sink
// both hand their events to.
//
// Channel discipline follows the write path's loss model: the persist
// channel uses a blocking send (backpressure, no loss), the
// projection and publish channels use non-blocking sends with drop
// (both rebuild from the persisted log).
type Recorder struct {
	mu       sync.Mutex
	sequence int64
	hasher   *StateHasher
	clock    clockwork.Clock
	log      zerolog.Logger
	metrics  *observability.Metrics

	persistChan    chan<- Output
	projectionChan chan<- Output
	publishChan    chan<- Output
}

// NewRecorder creates a recorder continuing from startSequence.
// projectionChan and publishChan may be nil; metrics may be nil.
func NewRecorder(
	startSequence int64,
	persistChan, projectionChan, publishChan chan<- Output,
	clock clockwork.Clock,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		clock:          clock,
		log:            log,
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		publishChan:    publishChan,
	}
}

// Record assigns the next sequence to a committed event and fans the
// envelope out. It is called synchronously from inside ledger and dam
// operations, so everything here must stay cheap and lock-local.
func (r *Recorder) Record(p event.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	prev := r.hasher.PrevHash()
	stateHash := r.hasher.ComputeHash(r.sequence, payloadDigest(p))

	out := Output{Envelope: &event.Envelope{
		Sequence:  r.sequence,
		Type:      p.EventType(),
		Account:   p.AccountID(),
		Timestamp: r.clock.Now(),
		Payload:   p,
		StateHash: stateHash,
		PrevHash:  prev,
	}}

	if r.persistChan != nil {
		select {
		case r.persistChan <- out:
		default:
			// Persistence is behind; block until it drains so no
			// event is lost.
			if r.metrics != nil {
				r.metrics.PersistBackpressure.Inc()
			}
			r.persistChan <- out
		}
	}

	if r.projectionChan != nil {
		select {
		case r.projectionChan <- out:
		default:
			if r.metrics != nil {
				r.metrics.ProjectionDrops.Inc()
			}
		}
	}

	if r.publishChan != nil {
		select {
		case r.publishChan <- out:
		default:
			if r.metrics != nil {
				r.metrics.PublishDrops.Inc()
			}
		}
	}

	if r.metrics != nil {
		r.metrics.OpsApplied.WithLabelValues(p.EventType().String()).Inc()
		r.metrics.CoreSequence.Set(float64(r.sequence))
	}
}

// Sequence returns the last assigned sequence.
func (r *Recorder) Sequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

// RestoreChainTip resumes the hash chain at a snapshot's state hash
// so the next envelope links to the pre-restart log.
func (r *Recorder) RestoreChainTip(stateHash [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasher.SetPrevHash(stateHash)
}

// ChainTip returns the state hash of the last recorded event.
func (r *Recorder) ChainTip() [32]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasher.PrevHash()
}

// payloadDigest produces the per-event digest fed into the hash
// chain: type, account, and the canonical JSON of the payload.
func payloadDigest(p event.Payload) []byte {
	body, err := json.Marshal(p)
	if err != nil {
		// Payloads are plain structs of scalars and slices; a marshal
		// failure is a programming error.
		panic(fmt.Sprintf("FATAL: marshal %s payload: %v", p.EventType(), err))
	}

	hasher := sha256.New()
	hasher.Write([]byte(p.EventType().String()))
	hasher.Write([]byte{0})
	hasher.Write([]byte(p.AccountID()))
	hasher.Write([]byte{0})
	hasher.Write(body)
	return hasher.Sum(nil)
}
