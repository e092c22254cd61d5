// SPDX-License-Identifier: MIT
package merge

import (
	"github.com/ManuGH/epgmerge/internal/epg"
)

// Registry keeps at most one Channel per canonical id. The first record that
// yields an id owns its display name and icon; later ones are dropped.
type Registry struct {
	canon    *epg.Canonicalizer
	byID     map[string]int
	channels []Channel
}

// NewRegistry returns an empty registry using canon for ids.
func NewRegistry(canon *epg.Canonicalizer) *Registry {
	if canon == nil {
		canon = epg.DefaultCanonicalizer()
	}
	return &Registry{
		canon: canon,
		byID:  make(map[string]int),
	}
}

// Register canonicalizes displayName and returns the canonical id for the
// record. originalID is the source-scoped id the caller maps from.
func (r *Registry) Register(originalID, displayName, icon string) string {
	id, _ := r.register(r.canon, displayName, icon)
	return id
}

func (r *Registry) register(canon *epg.Canonicalizer, displayName, icon string) (id string, created bool) {
	id, cleaned := canon.Canonicalize(displayName)
	if _, ok := r.byID[id]; ok {
		return id, false
	}
	r.byID[id] = len(r.channels)
	r.channels = append(r.channels, Channel{
		ID:          id,
		DisplayName: cleaned,
		Icon:        icon,
		SortKey:     epg.SortKey(cleaned),
	})
	return id, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns the channel registered under id.
func (r *Registry) Get(id string) (Channel, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Channel{}, false
	}
	return r.channels[i], true
}

// Len returns the number of registered channels.
func (r *Registry) Len() int { return len(r.channels) }

// Channels returns the channels in registration order.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}
