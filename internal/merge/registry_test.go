// SPDX-License-Identifier: MIT
package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FirstWriterWins(t *testing.T) {
	r := NewRegistry(nil)

	id := r.Register("a.1", "Cinemax (HD)", "first.png")
	assert.Equal(t, "CINEMAX.BRASIL", id)
	assert.Equal(t, id, r.Register("b.7", "CINEMAX", "second.png"))
	assert.Equal(t, 1, r.Len())

	ch, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Cinemax", ch.DisplayName)
	assert.Equal(t, "first.png", ch.Icon)
	assert.Equal(t, "CINEMAX", ch.SortKey)
}

func TestRegistry_EmptyNameUsesUnknownID(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, "CANALDESCONHECIDO.BRASIL", r.Register("x", "", ""))
	assert.Equal(t, "CANALDESCONHECIDO.BRASIL", r.Register("y", "(HD)", ""))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Has("CANALDESCONHECIDO.BRASIL"))
	assert.False(t, r.Has("GLOBO.BRASIL"))
}

func TestRegistry_ChannelsKeepsOrderAndCopies(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("1", "Viva", "")
	r.Register("2", "Axn", "")

	got := r.Channels()
	require.Len(t, got, 2)
	assert.Equal(t, "VIVA.BRASIL", got[0].ID)
	assert.Equal(t, "AXN.BRASIL", got[1].ID)

	got[0].DisplayName = "changed"
	ch, _ := r.Get("VIVA.BRASIL")
	assert.Equal(t, "Viva", ch.DisplayName)
}

func TestDeduplicator_Admit(t *testing.T) {
	d := NewDeduplicator()

	assert.True(t, d.Admit(Programme{ChannelID: "A", Start: "20240101100000 +0000", Content: titled("one")}))
	assert.False(t, d.Admit(Programme{ChannelID: "A", Start: "20240101100000 +0000", Stop: "x", Content: titled("two")}))
	assert.True(t, d.Admit(Programme{ChannelID: "B", Start: "20240101100000 +0000"}))
	// Start strings are compared exactly.
	assert.True(t, d.Admit(Programme{ChannelID: "A", Start: "20240101100000 -0300"}))
	assert.Equal(t, 3, d.Len())

	got := d.Programmes()
	assert.Equal(t, "one", got[0].Title())
	got[0].Titles = nil
	assert.Equal(t, "one", d.Programmes()[0].Title())
}
