package websocket

import (
	"errors"
	"streamspace/types"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hub routes progress messages to observer channels. Channels are keyed by
// job id; aliases such as a display name resolve to the id's channel.
type Hub interface {
	Attach(id string, ch Channel)
	Detach(id string)
	Release(id string, ch Channel)
	RegisterAlias(alias, id string)
	Publish(target string, msg types.ProgressMessage)
	AttachWatcher(ch Channel)
	DetachWatcher(ch Channel)
}

// hub guards its maps with one lock so publishes and connects never observe
// a channel without its aliases or the reverse.
type hub struct {
	mu sync.RWMutex

	// Registered channels mapped by job id
	channels map[string]Channel

	// Alias -> job id
	aliases map[string]string

	// Channels that receive every job's messages
	watchers map[Channel]struct{}

	logger zerolog.Logger
}

// HubOption configures a hub
type HubOption func(*hub)

// WithHubLogger sets the hub's logger
func WithHubLogger(l zerolog.Logger) HubOption {
	return func(h *hub) { h.logger = l }
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) Hub {
	h := &hub{
		channels: make(map[string]Channel),
		aliases:  make(map[string]string),
		watchers: make(map[Channel]struct{}),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach registers ch under id, replacing any previous channel
func (h *hub) Attach(id string, ch Channel) {
	h.mu.Lock()
	h.channels[id] = ch
	h.mu.Unlock()
	h.logger.Info().Str("job_id", id).Msg("websocket channel attached")
}

// Detach removes the channel for id and every alias pointing at id
func (h *hub) Detach(id string) {
	h.mu.Lock()
	h.detachLocked(id)
	h.mu.Unlock()
	h.logger.Info().Str("job_id", id).Msg("websocket channel detached")
}

// Release detaches id only while ch is still its registered channel, so a
// replaced connection closing late cannot remove its successor.
func (h *hub) Release(id string, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.channels[id]; ok && current == ch {
		h.detachLocked(id)
	}
}

// RegisterAlias makes alias resolve to id; no-op when alias equals id
func (h *hub) RegisterAlias(alias, id string) {
	if alias == "" || alias == id {
		return
	}
	h.mu.Lock()
	h.aliases[alias] = id
	h.mu.Unlock()
	h.logger.Info().Str("alias", alias).Str("job_id", id).Msg("registered alias")
}

// AttachWatcher registers a channel that receives every published message
func (h *hub) AttachWatcher(ch Channel) {
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()
}

// DetachWatcher removes a watch-all channel
func (h *hub) DetachWatcher(ch Channel) {
	h.mu.Lock()
	delete(h.watchers, ch)
	h.mu.Unlock()
}

// Publish delivers msg to the channel registered for target, resolving
// aliases. Undeliverable messages are dropped: a missing channel is logged,
// a closed or failing channel is pruned. A complete message closes the
// channel after it is sent.
func (h *hub) Publish(target string, msg types.ProgressMessage) {
	h.mu.RLock()
	id := target
	ch, ok := h.channels[id]
	if !ok {
		if backing, aliased := h.aliases[target]; aliased {
			id = backing
			ch, ok = h.channels[id]
		}
	}
	watchers := make([]Channel, 0, len(h.watchers))
	for w := range h.watchers {
		watchers = append(watchers, w)
	}
	h.mu.RUnlock()

	msg.JobID = id
	h.fanOut(watchers, msg)

	if !ok {
		h.logger.Warn().Str("job_id", target).Err(types.ErrChannelUnavailable).Msg("no websocket channel found")
		return
	}

	if !ch.IsOpen() {
		h.logger.Debug().Str("job_id", id).Msg("dropping message for closed channel")
		h.Release(id, ch)
		return
	}

	if err := ch.Send(msg); err != nil {
		if errors.Is(err, types.ErrSendBufferFull) {
			h.logger.Warn().Str("job_id", id).Msg("websocket send buffer full, dropping message")
			return
		}
		h.logger.Error().Err(err).Str("job_id", id).Msg("error sending progress update")
		h.Release(id, ch)
		return
	}

	if msg.Complete {
		if err := ch.Close(); err != nil {
			h.logger.Error().Err(err).Str("job_id", id).Msg("error closing websocket channel")
		}
		h.Release(id, ch)
		h.logger.Info().Str("job_id", id).Msg("closed websocket channel on completion")
	}
}

func (h *hub) fanOut(watchers []Channel, msg types.ProgressMessage) {
	for _, w := range watchers {
		if !w.IsOpen() {
			h.DetachWatcher(w)
			continue
		}
		if err := w.Send(msg); err != nil && !errors.Is(err, types.ErrSendBufferFull) {
			h.DetachWatcher(w)
		}
	}
}

// detachLocked must be called with mu held
func (h *hub) detachLocked(id string) {
	delete(h.channels, id)
	for alias, target := range h.aliases {
		if target == id {
			delete(h.aliases, alias)
		}
	}
}
