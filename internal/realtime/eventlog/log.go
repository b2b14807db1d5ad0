package eventlog

import (
	"sync"
	"time"
)

// MaxEventsPerOrg bounds the replay window: older events fall off the
// ring and clients further behind than that must do a full refetch.
const MaxEventsPerOrg = 5000

// Envelope is one broadcast event as delivered to clients. Seq is
// contiguous per org, starting at 1. Transient broadcasts (presence,
// typing) reuse this shape without entering the log; they carry no seq
// on the wire so clients cannot mistake them for replayable events.
type Envelope struct {
	Seq       uint64    `json:"seq,omitempty"`
	OrgID     string    `json:"orgId"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Log is an in-memory per-org event log with a bounded replay buffer.
type Log struct {
	mu   sync.RWMutex
	orgs map[string]*orgLog
	now  func() time.Time
}

// orgLog grows by appending until it reaches MaxEventsPerOrg, then
// turns into a ring: head marks the oldest retained event and new
// appends overwrite it. Orgs that never approach the cap only pay for
// what they log.
type orgLog struct {
	mu      sync.Mutex
	lastSeq uint64
	buf     []Envelope
	head    int // index of the oldest retained event
}

func New() *Log {
	return &Log{orgs: make(map[string]*orgLog), now: time.Now}
}

func (l *Log) org(orgID string) *orgLog {
	l.mu.RLock()
	o, ok := l.orgs[orgID]
	l.mu.RUnlock()
	if ok {
		return o
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orgs[orgID]; ok {
		return o
	}
	o = &orgLog{}
	l.orgs[orgID] = o
	return o
}

// Append assigns the next sequence number for the org and retains the
// event for replay, evicting the oldest entry once the buffer is full.
func (l *Log) Append(orgID, eventType string, payload any) Envelope {
	o := l.org(orgID)
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastSeq++
	e := Envelope{
		Seq:       o.lastSeq,
		OrgID:     orgID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: l.now(),
	}
	if len(o.buf) < MaxEventsPerOrg {
		o.buf = append(o.buf, e)
	} else {
		o.buf[o.head] = e
		o.head = (o.head + 1) % len(o.buf)
	}
	return e
}

// Query returns retained events with Seq > afterSeq, oldest first, up
// to limit, plus the oldest retained sequence number. A caller whose
// afterSeq is below oldest-1 has a gap the log can no longer fill and
// must refetch state instead of replaying.
func (l *Log) Query(orgID string, afterSeq uint64, limit int) (events []Envelope, oldestRetained uint64) {
	o := l.org(orgID)
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.buf)
	if n == 0 {
		return nil, 0
	}
	oldestRetained = o.buf[o.head].Seq
	if limit <= 0 {
		limit = n
	}
	for i := 0; i < n && len(events) < limit; i++ {
		e := o.buf[(o.head+i)%n]
		if e.Seq > afterSeq {
			events = append(events, e)
		}
	}
	return events, oldestRetained
}

// LatestSeq returns the last sequence number assigned for the org, 0
// if nothing was ever appended.
func (l *Log) LatestSeq(orgID string) uint64 {
	o := l.org(orgID)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSeq
}
