package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/couchcryptid/station-table-service/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStream = "station-table-changelog"

func newTestChangelog(t *testing.T) (*Changelog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewChangelog(client, testStream), mr
}

func collect(t *testing.T, c *Changelog) []domain.ChangelogEntry {
	t.Helper()
	var out []domain.ChangelogEntry
	require.NoError(t, c.Replay(context.Background(), func(e domain.ChangelogEntry) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func TestChangelog_ReplayEmpty(t *testing.T) {
	c, _ := newTestChangelog(t)
	assert.Empty(t, collect(t, c))
}

func TestChangelog_AppendAndReplay(t *testing.T) {
	c, _ := newTestChangelog(t)
	ctx := context.Background()

	loop := domain.TransformedStation{StationID: 5, StationName: "Loop", Order: 3, Line: domain.LineBlue}
	howard := domain.TransformedStation{StationID: 6, StationName: "Howard", Order: 1}

	require.NoError(t, c.Append(ctx, domain.ChangelogEntry{Key: 5, Value: &loop}))
	require.NoError(t, c.Append(ctx, domain.ChangelogEntry{Key: 6, Value: &howard}))
	require.NoError(t, c.Append(ctx, domain.ChangelogEntry{Key: 5}))

	entries := collect(t, c)
	require.Len(t, entries, 3)
	assert.Equal(t, loop, *entries[0].Value)
	assert.Equal(t, howard, *entries[1].Value)
	assert.Equal(t, int64(5), entries[2].Key)
	assert.True(t, entries[2].Tombstone())
}

func TestChangelog_ReplayPages(t *testing.T) {
	c, _ := newTestChangelog(t)
	ctx := context.Background()

	const n = replayPageSize*2 + 17
	for i := range n {
		s := domain.TransformedStation{StationID: int64(i), Order: int64(i)}
		require.NoError(t, c.Append(ctx, domain.ChangelogEntry{Key: s.StationID, Value: &s}))
	}

	entries := collect(t, c)
	require.Len(t, entries, n)
	for i, e := range entries {
		assert.Equal(t, int64(i), e.Key, "entry %d out of order", i)
	}
}

func TestChangelog_ReplayCorruptEntry(t *testing.T) {
	c, mr := newTestChangelog(t)

	_, err := mr.XAdd(testStream, "*", []string{fieldKey, "5", fieldValue, "{truncated", fieldTombstone, "0"})
	require.NoError(t, err)

	err = c.Replay(context.Background(), func(domain.ChangelogEntry) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode changelog value")
}

func TestChangelog_AppendFailsWhenServerDown(t *testing.T) {
	c, mr := newTestChangelog(t)
	mr.Close()

	s := domain.TransformedStation{StationID: 5}
	err := c.Append(context.Background(), domain.ChangelogEntry{Key: 5, Value: &s})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd")
}
