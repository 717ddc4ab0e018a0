package core

import "time"

// Clock is the time source for everything the engine persists or compares:
// claim timestamps, heartbeats, gate deadlines and next_activation predicates
// all read the same Clock so a test can drive them together.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// RealClock delegates to the time package.
type RealClock struct{}

func NewRealClock() Clock { return RealClock{} }

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }
