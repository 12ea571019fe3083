package mcp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
)

func TestSessionRegistry(t *testing.T) {
	r := newSessionRegistry()
	store := mapping.NewStore([]geometry.Page{{Index: 0, Width: 595, Height: 842}})
	sess := r.add(store, "forms/permit.pdf")

	got, err := r.get(store.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, r.len())

	_, err = r.get("missing")
	assert.Error(t, err)

	assert.True(t, r.remove(store.ID()))
	assert.False(t, r.remove(store.ID()))
	assert.Equal(t, 0, r.len())
}

func TestSessionRegistry_ConcurrentEdits(t *testing.T) {
	r := newSessionRegistry()
	store := mapping.NewStore([]geometry.Page{{Index: 0, Width: 595, Height: 842}})
	require.NoError(t, store.Seed([]extraction.DetectedField{{
		Name:     "worker",
		Kind:     extraction.KindText,
		Geometry: geometry.Rect{X: 50, Y: 700, Width: 200, Height: 20},
	}}))
	r.add(store, "permit.pdf")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.with(store.ID(), func(sess *session) error {
				return sess.store.SetValue("worker", "Kim")
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, ok := store.Value("worker")
	assert.True(t, ok)
	assert.Equal(t, "Kim", value)
}
