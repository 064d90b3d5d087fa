package browser

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

type logRecord struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// recorder accumulates network events and tracks in-flight requests.
// handle is called from the chromedp event goroutine and must not block.
type recorder struct {
	mu           sync.Mutex
	entries      []json.RawMessage
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	clock        func() time.Time
}

func newRecorder() *recorder {
	return &recorder{
		inflight: make(map[network.RequestID]struct{}),
		clock:    time.Now,
	}
}

func (r *recorder) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		r.mu.Lock()
		r.inflight[e.RequestID] = struct{}{}
		r.lastActivity = r.clock()
		r.mu.Unlock()
		r.append(MethodRequestWillBeSent, e)
	case *network.EventLoadingFinished:
		r.settle(e.RequestID)
		r.append(MethodLoadingFinished, e)
	case *network.EventLoadingFailed:
		r.settle(e.RequestID)
		r.append(MethodLoadingFailed, e)
	}
}

func (r *recorder) settle(id network.RequestID) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.lastActivity = r.clock()
	r.mu.Unlock()
}

func (r *recorder) append(method string, params any) {
	raw, err := json.Marshal(logRecord{Method: method, Params: params})
	if err != nil {
		return
	}
	r.mu.Lock()
	r.entries = append(r.entries, raw)
	r.mu.Unlock()
}

// drain returns all entries and resets the log.
func (r *recorder) drain() []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

// idleFor reports whether nothing is in flight and the last event is at
// least quiet old.
func (r *recorder) idleFor(quiet time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight) == 0 && r.clock().Sub(r.lastActivity) >= quiet
}

// reset forgets entries and in-flight requests left over from a previous
// page.
func (r *recorder) reset() {
	r.mu.Lock()
	r.entries = nil
	r.inflight = make(map[network.RequestID]struct{})
	r.lastActivity = r.clock()
	r.mu.Unlock()
}
