package orders

import "time"

func SetNumberSource(s *Service, fn func() string) {
	s.newNumber = fn
}

func SetClock(s *Service, fn func() time.Time) {
	s.now = fn
}
