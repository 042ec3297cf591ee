package mock

import (
	"fmt"
	"reflect"
	"testing"
)

// CheckActorExports checks that every exported method of an actor has the shape the host can invoke.
func CheckActorExports(t *testing.T, act interface{ Exports() []interface{} }) {
	for i, m := range act.Exports() {
		if i == 0 { // Send is implicit
			continue
		}

		if m == nil {
			continue
		}

		t.Run(fmt.Sprintf("method%d-type", i), func(t *testing.T) {
			mrt := &Runtime{t: t}
			mrt.verifyExportedMethodType(reflect.ValueOf(m))
		})
	}
}
