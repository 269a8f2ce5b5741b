package forward

import (
	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/version"
)

// newFileSlot opens a slot for f. Files entirely at or past the upper bound
// get a deleted slot which no seek revives.
func (it *Iterator) newFileSlot(f version.FileMeta) *slot {
	s := &slot{kind: fileSlot, file: f}
	if it.upperBound != nil && it.ucmp.Compare(f.Smallest.UserKey(), it.upperBound) >= 0 {
		s.state = deleted
		return s
	}
	s.iter = it.sv.Version.Cache().NewIterator(f.Number, f.Size, &it.opts)
	return s
}

func (it *Iterator) newLevelSlot(level int, files version.FileList) *slot {
	s := &slot{kind: levelSlot, level: level, files: files}
	if it.upperBound != nil && it.ucmp.Compare(files[0].Smallest.UserKey(), it.upperBound) >= 0 {
		s.state = deleted
		return s
	}
	s.iter = version.NewLevelIterator(it.icmp, files, it.sv.Version.Cache(), &it.opts)
	return s
}

func (it *Iterator) buildMemSlots() {
	it.mutable = newMemSlot(mutableSlot, it.sv.Mem)
	imms := it.sv.Imms
	it.imms = it.imms[:0]
	for i := len(imms) - 1; i >= 0; i-- {
		it.imms = append(it.imms, newMemSlot(immutableSlot, imms[i]))
	}
}

// rebuild builds all slots from scratch. With refresh it first pins the
// latest superversion.
func (it *Iterator) rebuild(refresh bool) error {
	it.closeSlots()
	if refresh {
		sv := it.registry.Current()
		if sv == nil {
			return errors.ErrDBClosed
		}
		it.releaseSuperVersion()
		it.sv = sv
	}
	it.trimmed = false
	it.buildMemSlots()
	v := it.sv.Version
	for _, f := range v.Levels[0] {
		it.l0 = append(it.l0, it.newFileSlot(f))
	}
	for level := 1; level < configs.NumberLevels; level++ {
		var s *slot
		if files := v.Levels[level]; len(files) != 0 {
			s = it.newLevelSlot(level, files)
		}
		it.levels[level-1] = s
	}
	it.forgetPosition()
	it.observer.Rebuilt()
	return nil
}

// renew moves to the latest superversion, keeping slots of files present
// in both superversions.
func (it *Iterator) renew() error {
	sv := it.registry.Current()
	if sv == nil {
		return errors.ErrDBClosed
	}
	old := it.sv
	it.sv = sv

	it.mutable.close()
	for _, s := range it.imms {
		s.close()
	}
	it.buildMemSlots()

	oldL0 := make(map[uint64]*slot, len(it.l0))
	for _, s := range it.l0 {
		oldL0[s.file.Number] = s
	}
	v := sv.Version
	l0 := make([]*slot, 0, len(v.Levels[0]))
	for _, f := range v.Levels[0] {
		s, inBoth := oldL0[f.Number]
		r := decideRenewal(s, inBoth)
		switch r {
		case DeferRebuild, CarryForward:
			delete(oldL0, f.Number)
		default:
			s = it.newFileSlot(f)
		}
		it.observer.Renewed(r)
		l0 = append(l0, s)
	}
	for _, s := range oldL0 {
		s.close()
	}
	it.l0 = l0

	for level := 1; level < configs.NumberLevels; level++ {
		s := it.levels[level-1]
		files := v.Levels[level]
		if len(files) == 0 {
			if s != nil {
				s.close()
			}
			it.levels[level-1] = nil
			continue
		}
		inBoth := s != nil && s.files.SameFiles(files)
		r := decideRenewal(s, inBoth)
		switch r {
		case DeferRebuild, CarryForward:
			s.files = files
		default:
			if s != nil {
				s.close()
			}
			s = it.newLevelSlot(level, files)
		}
		it.observer.Renewed(r)
		it.levels[level-1] = s
	}

	it.forgetPosition()
	old.Release()
	return nil
}

// resetIncomplete recreates slots that failed for lack of cached data.
func (it *Iterator) resetIncomplete() {
	cache := it.sv.Version.Cache()
	for _, s := range it.l0 {
		if errors.IsIncomplete(s.err()) {
			s.reset(cache.NewIterator(s.file.Number, s.file.Size, &it.opts))
		}
	}
	for _, s := range it.levels {
		if s != nil && errors.IsIncomplete(s.err()) {
			s.reset(version.NewLevelIterator(it.icmp, s.files, cache, &it.opts))
		}
	}
	it.forgetPosition()
}

func (it *Iterator) forgetPosition() {
	it.current = nil
	it.heap.clear()
	it.prevSet = false
}

func (it *Iterator) closeSlots() {
	if it.mutable != nil {
		it.mutable.close()
		it.mutable = nil
	}
	for i, s := range it.imms {
		s.close()
		it.imms[i] = nil
	}
	it.imms = it.imms[:0]
	for i, s := range it.l0 {
		s.close()
		it.l0[i] = nil
	}
	it.l0 = it.l0[:0]
	for i, s := range it.levels {
		if s != nil {
			s.close()
			it.levels[i] = nil
		}
	}
	it.forgetPosition()
}

func (it *Iterator) releaseSuperVersion() {
	if it.sv != nil {
		it.sv.Release()
		it.sv = nil
	}
}
