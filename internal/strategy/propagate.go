package strategy

// propagate checks each hypothesis's anchor cells against the world. Reads are
// memoized for the attempt, so a cell that refutes one hypothesis refutes
// every other hypothesis that needs something else there without another
// read. Unreadable cells do not refute.
func propagate(in Input, s *Scratch, dst []Candidate) []Candidate {
	if s == nil {
		s = NewScratch()
	}
	clear(s.memo)
	s.memo[in.Pos] = read{st: in.State, ok: true}

	for _, e := range in.Entries {
		origin := e.Origin(in.Pos)
		alive := true
		for _, c := range e.Variant.AnchorCells() {
			p := origin.Add(c.Offset)
			r, seen := s.memo[p]
			if !seen {
				st, err := in.World.BlockAt(p)
				r = read{st: st, ok: err == nil}
				s.memo[p] = r
			}
			if r.ok && !c.Matches(r.st) {
				alive = false
				break
			}
		}
		if alive {
			dst = append(dst, Candidate{Origin: origin, Entry: e})
		}
	}
	return dst
}
