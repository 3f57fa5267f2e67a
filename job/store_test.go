package job

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs_data.json")
	store := NewFileStore(path)

	start := mustParse(t, "2024/03/01 06:00:00")
	a := New("a", Every(6), start, start.Add(24*time.Hour))
	a.Enabled = true
	b := New("b", At(8, 16), start, start.Add(72*time.Hour))

	require.NoError(t, store.Save([]*Job{a, b}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, a.GUID, loaded[0].GUID)
	assert.Equal(t, a.TimePoints(), loaded[0].TimePoints())
	assert.Equal(t, ModeAt, loaded[1].Repetition.Mode)
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	jobs, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestListNextEligible(t *testing.T) {
	start := mustParse(t, "2024/03/01 00:00:00")
	now := start.Add(time.Hour)

	early := New("early", Every(2), start, start.Add(24*time.Hour))
	early.Enabled = true
	late := New("late", Every(12), start, start.Add(24*time.Hour))
	late.Enabled = true
	disabled := New("disabled", Every(1), start, start.Add(24*time.Hour))
	disabled.Enabled = false

	l := NewList([]*Job{late, early, disabled})
	j, at, ok := l.NextEligible(now)
	require.True(t, ok)
	assert.Equal(t, "early", j.Name)
	assert.Equal(t, start.Add(2*time.Hour), at)
}

func TestListNextEligibleStableTieBreak(t *testing.T) {
	start := mustParse(t, "2024/03/01 00:00:00")
	now := start.Add(time.Minute)

	first := New("first", Every(6), start, start.Add(24*time.Hour))
	first.Enabled = true
	second := New("second", Every(6), start, start.Add(24*time.Hour))
	second.Enabled = true

	l := NewList([]*Job{first, second})
	j, _, ok := l.NextEligible(now)
	require.True(t, ok)
	assert.Equal(t, "first", j.Name)
}

func TestListMembership(t *testing.T) {
	start := mustParse(t, "2024/03/01 00:00:00")
	j := New("member", Every(6), start, start.Add(24*time.Hour))

	l := NewList(nil)
	l.Add(j)

	found, ok := l.Find(j.GUID)
	require.True(t, ok)
	assert.Same(t, j, found)

	assert.True(t, l.Remove(j.GUID))
	assert.False(t, l.Remove(j.GUID))
	_, ok = l.Find(j.GUID)
	assert.False(t, ok)
}
