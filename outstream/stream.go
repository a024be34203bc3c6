package outstream

import "sync"

// MarkSink is implemented by a Sink that also supports end-to-end
// acknowledgement via Telnet TIMING-MARK.
type MarkSink interface {
	Sink
	Mark() // queue a TIMING-MARK command after the object just rendered
}

// Stream is the ordered output-object queue: it tracks how many
// queued objects have been sent to the attached
// connection (Sent) and how many of those have been acknowledged
// (Ack), maintaining 0 <= Ack <= Sent <= len(queue) at all times.
type Stream struct {
	mu            sync.Mutex
	queue         []Object
	sent          int
	ack           int
	sink          MarkSink
	acknowledging bool
}

// Counts returns the current (sent, ack, len) triple, for invariant
// checks and tests.
func (s *Stream) Counts() (sent, ack, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.ack, len(s.queue)
}

// Enqueue appends an object to the tail of the stream. If a
// connection is currently attached, it is rendered immediately.
func (s *Stream) Enqueue(obj Object) {
	s.mu.Lock()
	s.queue = append(s.queue, obj)
	s.mu.Unlock()
	s.sendAvailable()
}

// sendAvailable renders every unsent object to the attached sink, in
// enqueue order, queuing a TIMING-MARK after each one when
// acknowledgement is in effect.
func (s *Stream) sendAvailable() {
	for {
		s.mu.Lock()
		if s.sink == nil || s.sent >= len(s.queue) {
			s.mu.Unlock()
			return
		}
		obj := s.queue[s.sent]
		sink := s.sink
		ack := s.acknowledging
		s.sent++
		s.mu.Unlock()

		obj.Render(sink)
		if ack {
			sink.Mark()
		}
	}
}

// Acknowledge advances the ack cursor by one, never past Sent. It is
// called when the remote answers a TIMING-MARK. No acknowledgement is
// synthesized locally: objects sent while acknowledgement is not in
// effect stay queued (and are replayed by a later Attach) until
// Acknowledge is called for them.
func (s *Stream) Acknowledge() {
	s.mu.Lock()
	if s.ack < s.sent {
		s.ack++
	}
	s.mu.Unlock()
}

// Dequeue drops acknowledged objects from the head of the queue.
func (s *Stream) Dequeue() {
	s.mu.Lock()
	for s.ack > 0 && len(s.queue) > 0 {
		s.queue = s.queue[1:]
		s.ack--
		s.sent--
	}
	s.mu.Unlock()
}

// Attach associates a new sink with the stream and replays any
// output that was sent but never acknowledged on a prior connection.
// acknowledging controls whether a TIMING-MARK is queued after each
// replayed or newly sent object.
func (s *Stream) Attach(sink MarkSink, acknowledging bool) {
	s.mu.Lock()
	s.sink = sink
	s.acknowledging = acknowledging
	s.sent = s.ack // rewind to first unacknowledged object
	s.mu.Unlock()
	s.sendAvailable()
}

// Detach disassociates the stream from its sink. Already-sent
// objects remain queued (not dropped) so a future Attach can replay
// them.
func (s *Stream) Detach() {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
}

// HasUnacknowledged reports whether any sent object remains
// unacknowledged, i.e. whether a reattach would have anything to
// replay.
func (s *Stream) HasUnacknowledged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ack < s.sent
}
