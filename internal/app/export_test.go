package app

import "time"

// SetClock replaces the service time source.
func (s *NotificationService) SetClock(now func() time.Time) {
	s.now = now
}
