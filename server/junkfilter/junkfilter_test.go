package junkfilter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLists struct {
	safe    map[string]bool
	blocked map[string]bool
	err     error
}

func (f *fakeLists) IsSafeSender(_ context.Context, _, sender string) (bool, error) {
	return f.safe[sender], f.err
}

func (f *fakeLists) IsBlockedSender(_ context.Context, _, sender string) (bool, error) {
	return f.blocked[sender], f.err
}

func TestIsJunkBlockedSender(t *testing.T) {
	filter := New(&fakeLists{
		safe:    map[string]bool{},
		blocked: map[string]bool{"spam@example.com": true},
	})

	junk, err := filter.IsJunk(context.Background(), "user@example.com", "spam@example.com")
	require.NoError(t, err)
	assert.True(t, junk)
}

func TestIsJunkSafeListWins(t *testing.T) {
	// A sender on both lists is safe: the safe list is checked first.
	filter := New(&fakeLists{
		safe:    map[string]bool{"both@example.com": true},
		blocked: map[string]bool{"both@example.com": true},
	})

	junk, err := filter.IsJunk(context.Background(), "user@example.com", "both@example.com")
	require.NoError(t, err)
	assert.False(t, junk)
}

func TestIsJunkUnknownSender(t *testing.T) {
	filter := New(&fakeLists{safe: map[string]bool{}, blocked: map[string]bool{}})

	junk, err := filter.IsJunk(context.Background(), "user@example.com", "anyone@example.com")
	require.NoError(t, err)
	assert.False(t, junk)
}

func TestIsJunkNormalizesSender(t *testing.T) {
	filter := New(&fakeLists{
		safe:    map[string]bool{},
		blocked: map[string]bool{"spam@example.com": true},
	})

	junk, err := filter.IsJunk(context.Background(), "user@example.com", "  SPAM@Example.COM ")
	require.NoError(t, err)
	assert.True(t, junk)
}

func TestIsJunkEmptySender(t *testing.T) {
	filter := New(&fakeLists{safe: map[string]bool{}, blocked: map[string]bool{}})

	junk, err := filter.IsJunk(context.Background(), "user@example.com", "")
	require.NoError(t, err)
	assert.False(t, junk)
}

func TestIsJunkPropagatesStoreError(t *testing.T) {
	filter := New(&fakeLists{err: errors.New("connection refused")})

	_, err := filter.IsJunk(context.Background(), "user@example.com", "x@example.com")
	assert.Error(t, err)
}
