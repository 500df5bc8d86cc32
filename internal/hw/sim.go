package hw

import (
	"sync"
)

// SimIO is an in-memory DigitalIO. Unset pins read [High] so every
// presence sensor starts out idle.
type SimIO struct {
	mu     sync.Mutex
	levels map[int]Level
	writes map[int]int
}

// NewSimIO returns an idle simulated pin bank.
func NewSimIO() *SimIO {
	return &SimIO{
		levels: make(map[int]Level),
		writes: make(map[int]int),
	}
}

// Read returns the level last set or written for pin.
func (s *SimIO) Read(pin int) Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[pin]
	if !ok {
		return High
	}
	return l
}

// Write drives pin to level.
func (s *SimIO) Write(pin int, level Level) {
	s.mu.Lock()
	s.levels[pin] = level
	s.writes[pin]++
	s.mu.Unlock()
}

// Set changes an input level, as a sensor would.
func (s *SimIO) Set(pin int, level Level) {
	s.mu.Lock()
	s.levels[pin] = level
	s.mu.Unlock()
}

// Writes returns how many times pin has been written.
func (s *SimIO) Writes(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[pin]
}

// SimServo records the angles it is commanded to.
type SimServo struct {
	mu     sync.Mutex
	angles []int
}

// SetAngle records deg.
func (s *SimServo) SetAngle(deg int) {
	s.mu.Lock()
	s.angles = append(s.angles, deg)
	s.mu.Unlock()
}

// Angles returns a copy of every commanded angle in order.
func (s *SimServo) Angles() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.angles...)
}

// Angle returns the last commanded angle and whether one exists.
func (s *SimServo) Angle() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.angles) == 0 {
		return 0, false
	}
	return s.angles[len(s.angles)-1], true
}
