package runtime

import (
	"strconv"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-state-types/rt"
)

// Concrete types associated with the runtime interface.

// Timestamp is a block timestamp in host ticks. The tick unit is host-defined (milliseconds on
// most hosts); callers and actors must agree on it out of band.
type Timestamp uint64

func (t Timestamp) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Add returns t advanced by d ticks, or false if the sum is not representable.
func (t Timestamp) Add(d uint64) (Timestamp, bool) {
	sum := t + Timestamp(d)
	if sum < t {
		return 0, false
	}
	return sum, true
}

// After reports whether t is strictly later than u.
func (t Timestamp) After(u Timestamp) bool {
	return t > u
}

// Exit code reported by a value transfer that would leave the sender or the recipient holding a
// non-zero balance below the host's existential deposit (the dust/subsistence threshold).
// Occupies a reserved system code so it can never collide with an actor-specific code.
const SysErrBelowThreshold = exitcode.ExitCode(11)

type VMActor = rt.VMActor
