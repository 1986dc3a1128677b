package nmea

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limits on the fragment buffer. A feeder that starts sequences and never
// finishes them gets its oldest entries evicted instead of growing the map.
const (
	defaultMaxPending = 64
	defaultMaxAge     = 60 * time.Second
)

type fragKey struct {
	seqID   string
	channel string
}

type fragEntry struct {
	total   int
	parts   map[int]string
	fill    int
	started time.Time
}

// Assembler validates AIVDM sentences and reassembles multi-fragment
// payloads. Safe for one goroutine per listener connection.
type Assembler struct {
	mu         sync.Mutex
	pending    map[fragKey]*fragEntry
	maxPending int
	maxAge     time.Duration
	now        func() time.Time
}

// NewAssembler creates an assembler with the default bounds.
func NewAssembler() *Assembler {
	return &Assembler{
		pending:    make(map[fragKey]*fragEntry),
		maxPending: defaultMaxPending,
		maxAge:     defaultMaxAge,
		now:        time.Now,
	}
}

// Feed consumes one raw line. On a complete payload it returns the armored
// payload and its fill bit count. ErrIncomplete means the fragment was
// buffered; other errors mean the line was rejected.
func (a *Assembler) Feed(line string) (payload string, fill int, err error) {
	if !strings.HasPrefix(line, "!AIVDM") && !strings.HasPrefix(line, "!AIVDO") {
		return "", 0, ErrNotAIS
	}
	if err := Verify(line); err != nil {
		return "", 0, err
	}

	star := strings.LastIndexByte(line, '*')
	fields := strings.Split(line[:star], ",")
	if len(fields) < 7 {
		return "", 0, fmt.Errorf("%w: %d fields", ErrMalformed, len(fields))
	}

	total, err := fragField(fields[1])
	if err != nil {
		return "", 0, err
	}
	num, err := fragField(fields[2])
	if err != nil {
		return "", 0, err
	}
	if total < 1 || num < 1 || num > total {
		return "", 0, fmt.Errorf("%w: fragment %d of %d", ErrMalformed, num, total)
	}

	fill, _ = strconv.Atoi(fields[6])

	if total == 1 {
		return fields[5], fill, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.sweep(now)

	key := fragKey{seqID: fields[3], channel: fields[4]}
	entry := a.pending[key]
	if entry == nil {
		if len(a.pending) >= a.maxPending {
			a.evictOldest()
		}
		entry = &fragEntry{total: total, parts: make(map[int]string), started: now}
		a.pending[key] = entry
	}
	entry.parts[num] = fields[5]
	entry.fill = fill

	if len(entry.parts) < entry.total {
		return "", 0, ErrIncomplete
	}

	delete(a.pending, key)
	var sb strings.Builder
	for i := 1; i <= entry.total; i++ {
		sb.WriteString(entry.parts[i])
	}
	return sb.String(), entry.fill, nil
}

// Pending reports how many fragment sequences are currently buffered.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Assembler) sweep(now time.Time) {
	for key, entry := range a.pending {
		if now.Sub(entry.started) > a.maxAge {
			delete(a.pending, key)
		}
	}
}

func (a *Assembler) evictOldest() {
	var oldest fragKey
	var oldestStart time.Time
	first := true
	for key, entry := range a.pending {
		if first || entry.started.Before(oldestStart) {
			oldest = key
			oldestStart = entry.started
			first = false
		}
	}
	if !first {
		delete(a.pending, oldest)
	}
}

// Empty fragment count fields read as 1, matching common feeder behavior.
func fragField(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: fragment field %q", ErrMalformed, s)
	}
	return n, nil
}
