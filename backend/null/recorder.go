package null

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Call is one recorded native call.
type Call struct {
	Op   string
	Args []any
}

// Arg returns argument i, or nil.
func (c Call) Arg(i int) any {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return nil
}

// Recorder collects native calls in order. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	inject map[string][]error
	nextID atomic.Uint64
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{inject: make(map[string][]error)}
}

// record appends a call and returns the error injected for op, if any.
func (r *Recorder) record(op string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Args: args})
	errs := r.inject[op]
	if len(errs) == 0 {
		return nil
	}
	r.inject[op] = errs[1:]
	return errs[0]
}

func (r *Recorder) id() uint64 { return r.nextID.Add(1) }

// Inject makes the next calls of op fail with errs, one error per call.
func (r *Recorder) Inject(op string, errs ...error) {
	r.mu.Lock()
	r.inject[op] = append(r.inject[op], errs...)
	r.mu.Unlock()
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Ops returns the recorded operation names in order.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Op
	}
	return out
}

// Filter returns the calls of one operation.
func (r *Recorder) Filter(op string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times op was called.
func (r *Recorder) Count(op string) int {
	return len(r.Filter(op))
}

// Reset forgets recorded calls and pending injections.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	clear(r.inject)
	r.mu.Unlock()
}

// object is embedded by every null handle.
type object struct {
	rec       *Recorder
	kind      string
	handle    uint64
	destroyed bool
}

func newObject(rec *Recorder, kind string) object {
	return object{rec: rec, kind: kind, handle: rec.id()}
}

func (o *object) NativeHandle() uint64 { return o.handle }

// Destroyed reports whether Destroy was called.
func (o *object) Destroyed() bool { return o.destroyed }

func (o *object) Destroy() {
	o.destroyed = true
	_ = o.rec.record("Destroy"+o.kind, o.handle)
}
