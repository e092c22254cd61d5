// SPDX-License-Identifier: MIT
package merge

// Deduplicator admits at most one programme per (channel id, start) pair.
// Stop and the descriptive fields are not part of the key, so a later record
// for an occupied slot is dropped even when its title differs.
type Deduplicator struct {
	seen       map[string]struct{}
	programmes []Programme
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

func dedupKey(channelID, start string) string {
	return channelID + "\x00" + start
}

// Admit appends p unless its slot is taken and reports whether it did.
func (d *Deduplicator) Admit(p Programme) bool {
	key := dedupKey(p.ChannelID, p.Start)
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	d.programmes = append(d.programmes, p)
	return true
}

// Len returns the number of admitted programmes.
func (d *Deduplicator) Len() int { return len(d.programmes) }

// Programmes returns the admitted programmes in admission order.
func (d *Deduplicator) Programmes() []Programme {
	out := make([]Programme, len(d.programmes))
	copy(out, d.programmes)
	return out
}
