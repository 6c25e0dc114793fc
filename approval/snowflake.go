package approval

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Apply IDs are 64-bit Snowflakes rendered as decimal strings: 41 bits of
// milliseconds since 2024-01-01 UTC, 5 bits datacenter, 5 bits worker,
// 12 bits sequence. IDs are monotonically non-decreasing within one
// worker.
const (
	epochMillis = 1704067200000 // 2024-01-01T00:00:00Z

	datacenterBits = 5
	workerBits     = 5
	sequenceBits   = 12

	maxDatacenter = (1 << datacenterBits) - 1
	maxWorker     = (1 << workerBits) - 1
	maxSequence   = (1 << sequenceBits) - 1

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits
)

// ErrClockRewind is returned when the wall clock moved behind the last
// issued timestamp. The generator refuses to issue IDs until the clock
// catches up; the caller receives a hard error, no retry.
var ErrClockRewind = errors.New("clock moved backwards, refusing to generate apply id")

// IDGenerator issues Snowflake apply IDs. Safe for concurrent use.
type IDGenerator struct {
	mu         sync.Mutex
	datacenter int64
	worker     int64
	lastMillis int64
	sequence   int64
	now        func() time.Time
}

// NewIDGenerator creates a generator for one datacenter/worker pair.
func NewIDGenerator(datacenter, worker int64) (*IDGenerator, error) {
	if datacenter < 0 || datacenter > maxDatacenter {
		return nil, fmt.Errorf("datacenter id %d out of range [0, %d]", datacenter, maxDatacenter)
	}
	if worker < 0 || worker > maxWorker {
		return nil, fmt.Errorf("worker id %d out of range [0, %d]", worker, maxWorker)
	}
	return &IDGenerator{
		datacenter: datacenter,
		worker:     worker,
		lastMillis: -1,
		now:        time.Now,
	}, nil
}

// Next returns the next apply ID as a decimal string.
func (g *IDGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	if millis < g.lastMillis {
		return "", fmt.Errorf("%w: last=%d now=%d", ErrClockRewind, g.lastMillis, millis)
	}
	if millis == g.lastMillis {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted within this millisecond; spin to the next.
			for millis <= g.lastMillis {
				millis = g.now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMillis = millis

	id := (millis-epochMillis)<<timestampShift |
		g.datacenter<<datacenterShift |
		g.worker<<workerShift |
		g.sequence
	return strconv.FormatInt(id, 10), nil
}
