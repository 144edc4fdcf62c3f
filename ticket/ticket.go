package ticket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/intakemesh/core"
)

// ErrUnknownRecordType is returned when no Scheme is registered for a record type.
var ErrUnknownRecordType = errors.New("unknown record type")

// Scheme formats sequence numbers as ticket ids: Prefix + zero padded sequence.
type Scheme struct {
	Prefix string `yaml:"prefix"`
	Width  int    `yaml:"width"`
}

// Format renders seq, e.g. Scheme{"CYB", 6}.Format(7) == "CYB000007".
func (s Scheme) Format(seq int64) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.Width, seq)
}

// Parse extracts the sequence from an id produced by Format.
func (s Scheme) Parse(id string) (int64, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if !strings.HasPrefix(id, strings.ToUpper(s.Prefix)) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[len(s.Prefix):], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Counter is a named monotonic sequence. Increment must be a single atomic
// increment-and-read: concurrent callers always observe distinct values.
type Counter interface {
	Increment(ctx context.Context, name string) (int64, error)
}

// Sequencer maps record types to schemes and draws ids from a Counter.
type Sequencer struct {
	counter Counter
	schemes map[core.RecordType]Scheme
}

// NewSequencer creates a Sequencer. The schemes map is copied.
func NewSequencer(counter Counter, schemes map[core.RecordType]Scheme) *Sequencer {
	cp := make(map[core.RecordType]Scheme, len(schemes))
	for k, v := range schemes {
		cp[k] = v
	}
	return &Sequencer{counter: counter, schemes: cp}
}

// NextID draws the next ticket id for recordType.
func (s *Sequencer) NextID(ctx context.Context, recordType core.RecordType) (string, error) {
	scheme, ok := s.schemes[recordType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, recordType)
	}
	seq, err := s.counter.Increment(ctx, string(recordType))
	if err != nil {
		return "", fmt.Errorf("increment %s counter: %w", recordType, err)
	}
	return scheme.Format(seq), nil
}

// Scheme returns the scheme registered for recordType.
func (s *Sequencer) Scheme(recordType core.RecordType) (Scheme, bool) {
	scheme, ok := s.schemes[recordType]
	return scheme, ok
}

// LooksLikeTicket reports whether id matches any registered scheme.
func (s *Sequencer) LooksLikeTicket(id string) bool {
	for _, scheme := range s.schemes {
		if _, ok := scheme.Parse(id); ok {
			return true
		}
	}
	return false
}

// MemoryCounter is a process local Counter guarded by a mutex. Suitable for
// tests and single process deployments without a database.
type MemoryCounter struct {
	mu  sync.Mutex
	seq map[string]int64
}

// NewMemoryCounter returns an empty counter set.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{seq: make(map[string]int64)}
}

// Increment implements Counter.
func (c *MemoryCounter) Increment(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[name]++
	return c.seq[name], nil
}

// Set positions the counter, e.g. when seeding from an existing data set.
func (c *MemoryCounter) Set(name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[name] = value
}
