package gtfsrt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gtfsrt "transitboard.dev/gtfsrt"
)

func TestRegistryRegister(t *testing.T) {
	r := gtfsrt.NewRegistry()

	r.Register("66", "0", "stop1", 2)
	assert.True(t, r.IsSubscribed("66", "0", "stop1"))
	assert.False(t, r.IsSubscribed("66", "1", "stop1"))
	assert.False(t, r.IsSubscribed("66", "0", "stop2"))
	assert.True(t, r.HasRoute("66"))
	assert.False(t, r.HasRoute("7"))
}

func TestRegistryDefaults(t *testing.T) {
	r := gtfsrt.NewRegistry()

	// Empty direction defaults to "0", limit below 1 to 1.
	r.Register("66", "", "stop1", 0)
	assert.True(t, r.IsSubscribed("66", "0", "stop1"))

	subs := r.All()
	require.Len(t, subs, 1)
	assert.Equal(t, 1, subs[0].Limit)
}

func TestRegistryIdempotent(t *testing.T) {
	r := gtfsrt.NewRegistry()

	r.Register("66", "0", "stop1", 2)
	r.Register("66", "0", "stop1", 2)
	assert.Len(t, r.All(), 1)

	// Re-registering only ever raises the limit.
	r.Register("66", "0", "stop1", 5)
	assert.Equal(t, 5, r.All()[0].Limit)

	r.Register("66", "0", "stop1", 1)
	assert.Equal(t, 5, r.All()[0].Limit)
}

func TestRegistryAllSorted(t *testing.T) {
	r := gtfsrt.NewRegistry()

	r.Register("7", "1", "stop2", 1)
	r.Register("66", "0", "stop1", 1)
	r.Register("66", "0", "stop0", 1)

	subs := r.All()
	require.Len(t, subs, 3)
	assert.Equal(t, "stop0", subs[0].StopID)
	assert.Equal(t, "stop1", subs[1].StopID)
	assert.Equal(t, "7", subs[2].RouteID)
}
