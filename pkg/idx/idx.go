package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID-backed identifier used for user rows, session rows and
// request ids. ULIDs sort lexicographically by creation time, which keeps
// "oldest session first" queries a plain ORDER BY on the primary key.
type ID string

// Zero is the zero value ID. Only meaningful as a placeholder.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	genOnce sync.Once
	gen     *generator
)

// generator wraps a monotonic entropy source so concurrent callers get
// strictly ordered ULIDs within the same millisecond.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) newAt(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t), g.entropy).String())
}

func initGen() {
	gen = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a new ID using the current UTC time.
func New() ID {
	genOnce.Do(initGen)
	return gen.newAt(time.Now().UTC())
}

// NewAt returns an ID stamped with the provided time. Useful in tests for
// constructing IDs with a known ordering.
func NewAt(t time.Time) ID {
	genOnce.Do(initGen)
	return gen.newAt(t.UTC())
}

// Parse validates s as a canonical ULID and returns it as an ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// MustParse parses or panics. For hard-coded IDs in tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Time extracts the embedded UTC timestamp, or the zero time for invalid IDs.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
