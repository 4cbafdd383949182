package worldstore

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

// Store holds the loaded sections of one world. Single-cell reads and writes
// are atomic; a sequence of reads is not.
type Store struct {
	cfg Config
	reg *palette.Registry

	mu        sync.RWMutex
	sections  map[voxel.SectionPos]*Section
	states    []palette.BlockState
	stateByID map[string]uint16
}

func New(reg *palette.Registry, cfg Config) *Store {
	s := &Store{
		cfg:       cfg,
		reg:       reg,
		sections:  map[voxel.SectionPos]*Section{},
		stateByID: map[string]uint16{},
	}
	_, _ = s.intern(palette.BlockState{})
	return s
}

func (s *Store) ID() string { return s.cfg.ID }

func (s *Store) Config() Config { return s.cfg }

func (s *Store) Registry() *palette.Registry { return s.reg }

func (s *Store) InBounds(p voxel.Vec3) bool {
	if p.Y < s.cfg.MinY || p.Y > s.cfg.MaxY {
		return false
	}
	if r := s.cfg.BoundaryR; r > 0 {
		if p.X < -r || p.X > r || p.Z < -r || p.Z > r {
			return false
		}
	}
	return true
}

// BlockAt returns the state at p, or ErrUnloaded.
func (s *Store) BlockAt(p voxel.Vec3) (palette.BlockState, error) {
	if !s.InBounds(p) {
		return palette.BlockState{}, ErrOutOfWorld
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.sections[voxel.SectionOf(p)]
	if sec == nil {
		return palette.BlockState{}, ErrUnloaded
	}
	x, y, z := voxel.Local(p)
	return s.states[sec.States[index(x, y, z)]], nil
}

// SectionPalette ORs the materials present in a loaded section into dst.
func (s *Store) SectionPalette(sp voxel.SectionPos, dst palette.Bitset) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.sections[sp]
	if sec == nil {
		return ErrUnloaded
	}
	dst.Or(sec.mats)
	return nil
}

// SetBlock writes st at p, creating the section when needed, and returns
// the previous state.
func (s *Store) SetBlock(p voxel.Vec3, st palette.BlockState) (palette.BlockState, error) {
	if !s.InBounds(p) {
		return palette.BlockState{}, ErrOutOfWorld
	}
	if int(st.Material) >= s.reg.Len() {
		return palette.BlockState{}, fmt.Errorf("set block %v: unknown material %d", p, st.Material)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, err := s.sectionLocked(voxel.SectionOf(p))
	if err != nil {
		return palette.BlockState{}, fmt.Errorf("set block %v: %w", p, err)
	}
	x, y, z := voxel.Local(p)
	i := index(x, y, z)
	prev := s.states[sec.States[i]]
	id, err := s.intern(st)
	if err != nil {
		return prev, fmt.Errorf("set block %v: %w", p, err)
	}
	if sec.States[i] == id {
		return prev, nil
	}
	sec.States[i] = id
	sec.dirty = true
	s.countLocked(sec, prev.Material, -1)
	s.countLocked(sec, st.Material, 1)
	return prev, nil
}

// LoadSection replaces a section with property-less materials, as carried by
// bulk loads.
func (s *Store) LoadSection(sp voxel.SectionPos, mats []uint16) error {
	if len(mats) != SectionVolume {
		return fmt.Errorf("load section %v: got %d blocks, want %d", sp, len(mats), SectionVolume)
	}
	for i, m := range mats {
		if int(m) >= s.reg.Len() {
			return fmt.Errorf("load section %v: unknown material %d at %d", sp, m, i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.newSection(sp)
	for i, m := range mats {
		id, err := s.intern(palette.BlockState{Material: palette.Material(m)})
		if err != nil {
			return fmt.Errorf("load section %v: %w", sp, err)
		}
		sec.States[i] = id
		sec.counts[m]++
		sec.mats.Set(palette.Material(m))
	}
	s.sections[sp] = sec
	return nil
}

// EnsureLoaded creates (and generates) every section between lo and hi.
func (s *Store) EnsureLoaded(lo, hi voxel.SectionPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for y := lo.Y; y <= hi.Y; y++ {
		for z := lo.Z; z <= hi.Z; z++ {
			for x := lo.X; x <= hi.X; x++ {
				sp := voxel.SectionPos{X: x, Y: y, Z: z}
				if _, err := s.sectionLocked(sp); err != nil {
					return fmt.Errorf("load section %v: %w", sp, err)
				}
			}
		}
	}
	return nil
}

func (s *Store) Unload(sp voxel.SectionPos) {
	s.mu.Lock()
	delete(s.sections, sp)
	s.mu.Unlock()
}

// Materials returns a section's property-less materials for bulk transfer.
func (s *Store) Materials(sp voxel.SectionPos) ([]uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.sections[sp]
	if sec == nil {
		return nil, false
	}
	out := make([]uint16, len(sec.States))
	for i, id := range sec.States {
		out[i] = uint16(s.states[id].Material)
	}
	return out, true
}

func (s *Store) Digest(sp voxel.SectionPos) ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sections[sp]
	if sec == nil {
		return [32]byte{}, false
	}
	return sec.Digest(), true
}

func (s *Store) LoadedSections() []voxel.SectionPos {
	s.mu.RLock()
	keys := make([]voxel.SectionPos, 0, len(s.sections))
	for k := range s.sections {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return keys
}

func (s *Store) newSection(sp voxel.SectionPos) *Section {
	return &Section{
		Pos:    sp,
		States: make([]uint16, SectionVolume),
		counts: make([]uint32, s.reg.Len()),
		mats:   s.reg.NewBitset(),
		dirty:  true,
	}
}

func (s *Store) sectionLocked(sp voxel.SectionPos) (*Section, error) {
	if sec, ok := s.sections[sp]; ok {
		return sec, nil
	}
	sec := s.newSection(sp)
	if err := s.generateSection(sec); err != nil {
		return nil, err
	}
	s.sections[sp] = sec
	return sec, nil
}

func (s *Store) countLocked(sec *Section, m palette.Material, d int) {
	if d > 0 {
		sec.counts[m]++
		sec.mats.Set(m)
		return
	}
	sec.counts[m]--
	if sec.counts[m] == 0 {
		sec.mats[m>>6] &^= 1 << (m & 63)
	}
}

// intern returns the id of st, adding it on first use. Callers hold mu for
// writing, or are New.
func (s *Store) intern(st palette.BlockState) (uint16, error) {
	key := stateKey(st)
	if id, ok := s.stateByID[key]; ok {
		return id, nil
	}
	if len(s.states) > math.MaxUint16 {
		return 0, ErrStateTableFull
	}
	id := uint16(len(s.states))
	cp := palette.BlockState{Material: st.Material}
	if len(st.Props) > 0 {
		cp.Props = append([]palette.Prop(nil), st.Props...)
	}
	s.states = append(s.states, cp)
	s.stateByID[key] = id
	return id, nil
}

func stateKey(st palette.BlockState) string {
	return fmt.Sprintf("%d[%s]", st.Material, palette.PropsKey(st.Props))
}
