package builtin

import (
	"fmt"
)

// Accumulates a sequence of messages (e.g. validation failures).
type MessageAccumulator struct {
	msgs   []string
	prefix string
	parent *MessageAccumulator
}

func (ma *MessageAccumulator) IsEmpty() bool {
	return len(ma.msgs) == 0
}

func (ma *MessageAccumulator) Messages() []string {
	return ma.msgs[:]
}

// Returns a new accumulator whose messages are copied into this one, prefixed.
func (ma *MessageAccumulator) WithPrefix(prefix string) *MessageAccumulator {
	return &MessageAccumulator{prefix: ma.prefix + prefix, parent: ma}
}

// Adds messages to the accumulator.
func (ma *MessageAccumulator) Add(msgs ...string) {
	for _, m := range msgs {
		ma.append(ma.prefix + m)
	}
}

func (ma *MessageAccumulator) append(m string) {
	ma.msgs = append(ma.msgs, m)
	if ma.parent != nil {
		ma.parent.append(m)
	}
}

// Adds a message to the accumulator
func (ma *MessageAccumulator) Addf(msg string, args ...interface{}) {
	ma.Add(fmt.Sprintf(msg, args...))
}

// Adds messages from another accumulator to this one.
func (ma *MessageAccumulator) AddAll(msgs *MessageAccumulator) {
	ma.Add(msgs.msgs...)
}

// Adds a message if err is non-nil.
func (ma *MessageAccumulator) RequireNoError(err error, msg string, args ...interface{}) {
	if err != nil {
		msg = msg + ": %v"
		args = append(args, err)
		ma.Addf(msg, args...)
	}
}

// Adds a message if predicate is false.
func (ma *MessageAccumulator) Require(predicate bool, msg string, args ...interface{}) {
	if !predicate {
		ma.Add(fmt.Sprintf(msg, args...))
	}
}
