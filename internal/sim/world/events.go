package world

// Event kinds.
const (
	EventSay      = "say"
	EventMove     = "move"
	EventArrive   = "arrive"
	EventInteract = "interact"
	EventTrade    = "trade"
	EventEat      = "eat"
	EventWork     = "work"
	EventDeath    = "death"
)

type Event struct {
	Seq   uint64 `json:"seq"`
	Tick  int    `json:"tick"`
	Place string `json:"place"`
	Actor string `json:"actor,omitempty"`
	Kind  string `json:"kind"`
	Text  string `json:"text"`
}

// EventQueue is a bounded FIFO of broadcast events. When full, the oldest
// quarter is dropped. Events are best-effort, not a durable log.
type EventQueue struct {
	cap     int
	events  []Event
	nextSeq uint64
	dropped uint64
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity < 4 {
		capacity = 4
	}
	return &EventQueue{cap: capacity, events: make([]Event, 0, capacity), nextSeq: 1}
}

// Push assigns the next sequence number and appends e.
func (q *EventQueue) Push(e Event) Event {
	if len(q.events) >= q.cap {
		drop := q.cap / 4
		if drop < 1 {
			drop = 1
		}
		q.events = append(q.events[:0], q.events[drop:]...)
		q.dropped += uint64(drop)
	}
	e.Seq = q.nextSeq
	q.nextSeq++
	q.events = append(q.events, e)
	return e
}

func (q *EventQueue) Len() int        { return len(q.events) }
func (q *EventQueue) Cap() int        { return q.cap }
func (q *EventQueue) Dropped() uint64 { return q.dropped }

// LastSeq is the sequence number of the newest event ever pushed.
func (q *EventQueue) LastSeq() uint64 { return q.nextSeq - 1 }

// Since returns events at place newer than seq, oldest first. An empty place matches all.
func (q *EventQueue) Since(place string, seq uint64) []Event {
	var out []Event
	for _, e := range q.events {
		if e.Seq > seq && (place == "" || e.Place == place) {
			out = append(out, e)
		}
	}
	return out
}

func (q *EventQueue) All() []Event { return append([]Event(nil), q.events...) }

func (q *EventQueue) restore(events []Event, nextSeq, dropped uint64) {
	if len(events) > q.cap {
		events = events[len(events)-q.cap:]
	}
	q.events = append(q.events[:0], events...)
	if nextSeq == 0 {
		nextSeq = 1
	}
	q.nextSeq = nextSeq
	q.dropped = dropped
}
