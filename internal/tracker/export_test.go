package tracker

// ActiveLocks reports how many per-user lock entries s holds.
func ActiveLocks(s *Service) int {
	return s.locks.len()
}
