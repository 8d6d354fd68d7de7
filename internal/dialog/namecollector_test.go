package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameCollectorAdjacentTokensResolveImmediately(t *testing.T) {
	var nc NameCollector
	done, name := nc.Observe("John Smith")
	assert.True(t, done)
	assert.Equal(t, "John Smith", name)
	assert.Equal(t, "", nc.First())
}

func TestNameCollectorSplitAcrossTurns(t *testing.T) {
	var nc NameCollector
	done, _ := nc.Observe("John")
	assert.False(t, done)
	assert.Equal(t, "John", nc.First())

	done, name := nc.Observe("Smith")
	assert.True(t, done)
	assert.Equal(t, "John Smith", name)
}

func TestNameCollectorIgnoresFiller(t *testing.T) {
	var nc NameCollector
	done, _ := nc.Observe("um hello yes")
	assert.False(t, done)
	assert.Equal(t, "", nc.First())

	// Filler around the name still yields clean tokens.
	done, name := nc.Observe("uh Maria Lopez thanks")
	assert.True(t, done)
	assert.Equal(t, "Maria Lopez", name)
}

func TestNameCollectorRepeatsOfferConfirmAsIs(t *testing.T) {
	var nc NameCollector
	nc.Observe("Cher")
	assert.False(t, nc.AwaitingConfirm())

	nc.Observe("Cher")
	assert.False(t, nc.AwaitingConfirm())

	nc.Observe("cher") // case-insensitive repeat
	assert.True(t, nc.AwaitingConfirm())

	name, ok := nc.ConfirmAsIs()
	assert.True(t, ok)
	assert.Equal(t, "Cher", name)
	assert.False(t, nc.AwaitingConfirm())
}

func TestNameCollectorConfirmAsIsRequiresHeldToken(t *testing.T) {
	var nc NameCollector
	_, ok := nc.ConfirmAsIs()
	assert.False(t, ok)
}

func TestNameCollectorDifferingTokenBeatsConfirm(t *testing.T) {
	var nc NameCollector
	nc.Observe("Cher")
	nc.Observe("Cher")
	nc.Observe("Cher")
	assert.True(t, nc.AwaitingConfirm())

	// A surname arriving while the confirm offer is open still wins.
	done, name := nc.Observe("Sarkisian")
	assert.True(t, done)
	assert.Equal(t, "Cher Sarkisian", name)
}
