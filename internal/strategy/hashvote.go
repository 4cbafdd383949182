package strategy

import (
	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

// hashVote reads the trigger's six neighbours once. An entry whose expected
// neighbourhood is fully exact is accepted on a hash hit; otherwise each
// constrained face votes, and unreadable faces vote in favour.
func hashVote(in Input, dst []Candidate) []Candidate {
	var (
		states [6]palette.BlockState
		ok     [6]bool
		mats   [6]palette.Material
		all    = true
	)
	for i, f := range voxel.Faces {
		st, err := in.World.BlockAt(in.Pos.Add(f))
		if err != nil {
			all = false
			continue
		}
		states[i], ok[i], mats[i] = st, true, st.Material
	}
	var h uint64
	if all {
		h = index.HoodHash(mats)
	}
	threshold := in.VoteThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 1
	}

	for _, e := range in.Entries {
		if all && e.Hood.Exact && e.Hood.Hash == h {
			dst = append(dst, Candidate{Origin: e.Origin(in.Pos), Entry: e})
			continue
		}
		if e.Hood.Constrained == 0 {
			dst = append(dst, Candidate{Origin: e.Origin(in.Pos), Entry: e})
			continue
		}
		votes := 0
		for i, c := range e.Hood.Cells {
			if c == nil {
				continue
			}
			if !ok[i] || c.Matches(states[i]) {
				votes++
			}
		}
		if float64(votes) >= threshold*float64(e.Hood.Constrained) {
			dst = append(dst, Candidate{Origin: e.Origin(in.Pos), Entry: e})
		}
	}
	return dst
}
