package core

// Timer represents a scheduled one-shot software event
type Timer struct {
	WakeTime uint64 // Extended microsecond deadline
	Handler  func(*Timer) uint8
	Next     *Timer
	pending  bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps software timers sorted by deadline on top of a 32-bit
// microsecond clock. The clock is extended to 64 bits internally, so it
// must be sampled (any Scheduler call does) at least once per wrap.
type Scheduler struct {
	clock    func() uint32
	timers   *Timer
	lastTime uint32
	high     uint64
}

// NewScheduler creates a scheduler reading time from clock
func NewScheduler(clock func() uint32) *Scheduler {
	s := &Scheduler{clock: clock}
	s.lastTime = clock()
	return s
}

// Now returns the extended 64-bit clock in microseconds
func (s *Scheduler) Now() uint64 {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)
	return s.now()
}

// now must be called with interrupts disabled
func (s *Scheduler) now() uint64 {
	t := s.clock()
	if t < s.lastTime {
		s.high += 1 << 32
	}
	s.lastTime = t
	return s.high | uint64(t)
}

// Set schedules t to fire delayUS microseconds from now, replacing any
// pending schedule of the same timer
func (s *Scheduler) Set(t *Timer, delayUS uint64) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	s.remove(t)
	t.WakeTime = s.now() + delayUS
	s.insert(t)
}

// Remove cancels t. It returns false when t was not pending, which
// includes a timer that already fired
func (s *Scheduler) Remove(t *Timer) bool {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)
	return s.remove(t)
}

// Next returns the deadline of the earliest pending timer
func (s *Scheduler) Next() (uint64, bool) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)
	if s.timers == nil {
		return 0, false
	}
	return s.timers.WakeTime, true
}

// Dispatch runs every timer whose deadline has passed. Handlers run with
// interrupts disabled, like interrupt handlers
func (s *Scheduler) Dispatch() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	now := s.now()
	for s.timers != nil && s.timers.WakeTime <= now {
		t := s.timers
		s.timers = t.Next
		t.Next = nil
		t.pending = false

		if t.Handler(t) == SF_RESCHEDULE {
			s.insert(t)
		}
	}
}

// insert adds t in deadline order; equal deadlines keep FIFO order
func (s *Scheduler) insert(t *Timer) {
	t.pending = true
	if s.timers == nil || t.WakeTime < s.timers.WakeTime {
		t.Next = s.timers
		s.timers = t
		return
	}

	current := s.timers
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}
	t.Next = current.Next
	current.Next = t
}

func (s *Scheduler) remove(t *Timer) bool {
	if !t.pending {
		return false
	}
	for link := &s.timers; *link != nil; link = &(*link).Next {
		if *link == t {
			*link = t.Next
			t.Next = nil
			t.pending = false
			return true
		}
	}
	t.pending = false
	return false
}
