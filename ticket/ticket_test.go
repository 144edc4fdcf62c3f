package ticket

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/core"
)

var testSchemes = map[core.RecordType]Scheme{
	core.RecordTypeReport:    {Prefix: "CYB", Width: 6},
	core.RecordTypeComplaint: {Prefix: "1930OD", Width: 6},
}

func TestScheme_FormatAndParse(t *testing.T) {
	s := Scheme{Prefix: "CYB", Width: 6}
	assert.Equal(t, "CYB000007", s.Format(7))
	assert.Equal(t, "CYB1234567", s.Format(1234567))

	n, ok := s.Parse("cyb000042")
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = s.Parse("1930OD000001")
	assert.False(t, ok)
	_, ok = s.Parse("CYBabc")
	assert.False(t, ok)
}

func TestSequencer_ContinuesFromCounter(t *testing.T) {
	counter := NewMemoryCounter()
	counter.Set(string(core.RecordTypeReport), 6)
	seq := NewSequencer(counter, testSchemes)

	id, err := seq.NextID(context.Background(), core.RecordTypeReport)
	require.NoError(t, err)
	assert.Equal(t, "CYB000007", id)

	id, err = seq.NextID(context.Background(), core.RecordTypeComplaint)
	require.NoError(t, err)
	assert.Equal(t, "1930OD000001", id)
}

func TestSequencer_UnknownRecordType(t *testing.T) {
	seq := NewSequencer(NewMemoryCounter(), testSchemes)
	_, err := seq.NextID(context.Background(), core.RecordType("nope"))
	assert.True(t, errors.Is(err, ErrUnknownRecordType))
}

func TestSequencer_ConcurrentIDsAreDistinct(t *testing.T) {
	seq := NewSequencer(NewMemoryCounter(), testSchemes)

	const n = 200
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := seq.NextID(context.Background(), core.RecordTypeReport)
			if err != nil {
				t.Errorf("next id: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestSequencer_LooksLikeTicket(t *testing.T) {
	seq := NewSequencer(NewMemoryCounter(), testSchemes)
	assert.True(t, seq.LooksLikeTicket("CYB000001"))
	assert.True(t, seq.LooksLikeTicket("1930od000003"))
	assert.False(t, seq.LooksLikeTicket("hello"))
}
