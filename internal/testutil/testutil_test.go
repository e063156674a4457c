package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/source"
)

func TestFixedTokenGenerator(t *testing.T) {
	g := NewFixedTokenGenerator("tok")
	assert.Equal(t, "tok", g.Generate())
	assert.Equal(t, "tok", g.Generate())
	assert.Equal(t, "test-run-default", NewFixedTokenGenerator("").Generate())
}

func TestRecordingSink(t *testing.T) {
	s := NewRecordingSink()
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, &builder.Event{EventNumber: 1}))
	require.NoError(t, s.Publish(ctx, &builder.Event{EventNumber: 2}))

	s.Fail = func(ev *builder.Event) error {
		return errors.New("store down")
	}
	assert.Error(t, s.Publish(ctx, &builder.Event{EventNumber: 3}))

	assert.Equal(t, []int{1, 2}, s.EventNumbers())
	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.Events(), 2)
}

func TestFill(t *testing.T) {
	m := Fill("seb00", false, Run{First: 1, Last: 3, Clock: 10, Step: 5, ID: 7})

	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Closed())

	first, ok := m.Next()
	require.True(t, ok)
	assert.Equal(t, 1, first.EventNumber)
	assert.Equal(t, uint64(10), first.Clock)
	m.Next()
	last, _ := m.Next()
	assert.Equal(t, uint64(20), last.Clock)
	assert.True(t, source.IsDrained(m))

	open := Fill("seb01", true)
	assert.False(t, open.Closed())
}
