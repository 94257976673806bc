package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/outbox/payloads"
)

// DecodeFunc turns raw envelope data into a typed payload.
type DecodeFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	event   enums.OutboxEventType
	version int
}

// DecoderRegistry is the consumer-side counterpart of EventRegistry: it maps
// an event type and envelope version to the payload struct a worker handles.
// Versions are explicit so an old worker rejects an envelope it does not
// understand instead of silently dropping new fields.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]DecodeFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]DecodeFunc)}
}

// JobDecoders returns the registry the jobs worker runs with.
func JobDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventJobSubmitted, 1, func(raw json.RawMessage) (any, error) {
		var event payloads.JobSubmittedEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	return reg
}

func (r *DecoderRegistry) Register(event enums.OutboxEventType, version int, decode DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{event: event, version: version}] = decode
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(event enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[decoderKey{event: event, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d", event, version)
	}
	return decode(payload)
}
