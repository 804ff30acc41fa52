// Package fault carries the fatal consistency failures raised while
// classifying samples.
//
// A Fault is raised with panic and is never expected during a correct run: it
// means the classification model disagrees with the captured evidence. The
// collector recovers faults at the tile-kind boundary so that the engineer
// running the pass sees which tile, bel, attribute and value was being
// processed.
package fault

import (
	"fmt"
	"strings"
)

// Fault describes one failed assertion.
type Fault struct {
	Op      string   // operation that failed, e.g. "combine" or "assert_empty"
	Msg     string   // human readable detail
	Context []string // outermost first, e.g. "IOB_V2_NW2", "IOB0", "PULL"
}

func (f *Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Op)
	sb.WriteString(": ")
	sb.WriteString(f.Msg)
	if len(f.Context) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(f.Context, " "))
		sb.WriteString("]")
	}
	return sb.String()
}

// Raise panics with a new Fault.
func Raise(op, format string, args ...any) {
	panic(&Fault{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Within runs f and, if it panics with a Fault, prepends ctx to the fault's
// context before re-panicking. Other panics pass through untouched.
func Within(f func(), ctx ...string) {
	defer func() {
		if r := recover(); r != nil {
			if ft, ok := r.(*Fault); ok {
				ft.Context = append(append([]string(nil), ctx...), ft.Context...)
				panic(ft)
			}
			panic(r)
		}
	}()
	f()
}

// Catch runs f and returns the Fault it raised, or nil.
func Catch(f func()) (ft *Fault) {
	defer func() {
		if r := recover(); r != nil {
			var ok bool
			if ft, ok = r.(*Fault); !ok {
				panic(r)
			}
		}
	}()
	f()
	return nil
}
