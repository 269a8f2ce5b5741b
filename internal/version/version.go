// Package version tracks which sorted tables make up each level. A Version
// is immutable once installed; readers pin it with Retain and files leave
// disk only after every Version referencing them is released.
package version

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table"
)

var errOverlappedTables = errors.New("lsmtail: overlapped tables in level")

type Version struct {
	refs    atomic.Int64
	set     *Set
	icmp    *keys.InternalComparator
	options *options.Options
	cache   *table.Cache

	// Levels[0], sorted from newest to oldest;
	// Levels[n], sorted from smallest to largest.
	Levels [configs.NumberLevels]FileList

	CompactionScore    float64
	CompactionLevel    int
	CompactionPointers [configs.NumberLevels]keys.InternalKey
}

// Retain pins v.
func (v *Version) Retain() *Version {
	v.refs.Add(1)
	return v
}

// Release unpins v. Files only v referenced become obsolete after the
// last release.
func (v *Version) Release() {
	switch n := v.refs.Add(-1); {
	case n == 0:
		if v.set != nil {
			v.set.releaseVersion(v)
		}
	case n < 0:
		panic("lsmtail: version released too many times")
	}
}

// Cache returns the table cache files of v are read through.
func (v *Version) Cache() *table.Cache {
	return v.cache
}

// Comparator returns the internal key comparator.
func (v *Version) Comparator() *keys.InternalComparator {
	return v.icmp
}

// NumFiles returns file count of level.
func (v *Version) NumFiles(level int) int {
	return len(v.Levels[level])
}

func (v *Version) String() string {
	var b strings.Builder
	for level, files := range v.Levels[:] {
		if len(files) == 0 {
			continue
		}
		fmt.Fprintf(&b, "level %d contains %d files:\n", level, len(files))
		for _, f := range files {
			fmt.Fprintf(&b, "  file %06d: size %d, smallest key: %q, largest key: %q\n", f.Number, f.Size, f.Smallest, f.Largest)
		}
	}
	fmt.Fprintf(&b, "level %d has highest compaction score: %f\n", v.CompactionLevel, v.CompactionScore)
	return b.String()
}

func (v *Version) sortFiles() error {
	sort.Sort(byNewestFileMeta(v.Levels[0]))
	var byKeys byFileKey
	byKeys.cmp = v.icmp
	for level := 1; level < configs.NumberLevels; level++ {
		files := v.Levels[level]
		byKeys.files = files
		sort.Sort(&byKeys)
		for i := 0; i < len(files)-1; i++ {
			if v.icmp.Compare(files[i].Largest, files[i+1].Smallest) >= 0 {
				return errors.Wrapf(errOverlappedTables, "level %d files %06d and %06d", level, files[i].Number, files[i+1].Number)
			}
		}
	}
	return nil
}

// AppendIterators appends one iterator per level 0 file and one per non
// empty level n.
func (v *Version) AppendIterators(iters []iterator.Iterator, opts *options.ReadOptions) []iterator.Iterator {
	for _, f := range v.Levels[0] {
		iters = append(iters, v.cache.NewIterator(f.Number, f.Size, opts))
	}
	for level := 1; level < len(v.Levels); level++ {
		files := v.Levels[level]
		if len(files) == 0 {
			continue
		}
		iters = append(iters, NewLevelIterator(v.icmp, files, v.cache, opts))
	}
	return iters
}

// Get looks up ikey from newest file to oldest. It returns
// errors.ErrNotFound for both missing and deleted keys.
func (v *Version) Get(ikey keys.InternalKey, opts *options.ReadOptions) ([]byte, error) {
	// A file whose smallest user key is greater than ikey's holds no older
	// incarnation of it. A file whose largest internal key is less than
	// ikey holds only newer ones, if any.
	icmp := v.icmp
	ucmp := icmp.UserKeyComparator
	ukey := ikey.UserKey()
	for _, f := range v.Levels[0] {
		if ucmp.Compare(ukey, f.Smallest.UserKey()) < 0 {
			continue
		}
		if icmp.Compare(ikey, f.Largest) > 0 {
			continue
		}
		value, err, ok := v.cache.Get(f.Number, f.Size, ikey, opts)
		if ok {
			return value, err
		}
	}
	for level := 1; level < configs.NumberLevels; level++ {
		files := v.Levels[level]
		n := len(files)
		i := sort.Search(n, func(i int) bool { return icmp.Compare(ikey, files[i].Largest) <= 0 })
		if i == n || ucmp.Compare(ukey, files[i].Smallest.UserKey()) < 0 {
			continue
		}
		value, err, ok := v.cache.Get(files[i].Number, files[i].Size, ikey, opts)
		if ok {
			return value, err
		}
	}
	return nil, errors.ErrNotFound
}

// OverlapsPrefix reports whether any file of level may hold keys with
// prefix. Level 0 files are checked one by one.
func (v *Version) OverlapsPrefix(level int, prefix []byte) bool {
	ucmp := v.icmp.UserKeyComparator
	for _, f := range v.Levels[level] {
		if FileOverlapsPrefix(ucmp, f, prefix) {
			return true
		}
	}
	return false
}

// FileOverlapsPrefix reports whether user key range of f intersects keys
// starting with prefix.
func FileOverlapsPrefix(ucmp keys.UserComparator, f FileMeta, prefix []byte) bool {
	if ucmp.Compare(f.Largest.UserKey(), prefix) < 0 {
		return false
	}
	if limit := ucmp.MakePrefixSuccessor(prefix); limit != nil && ucmp.Compare(f.Smallest.UserKey(), limit) >= 0 {
		return false
	}
	return true
}

func (v *Version) computeCompactionScore() {
	trigger := v.options.Level0CompactionTrigger
	if trigger <= 0 {
		trigger = options.DefaultLevel0CompactionTrigger
	}
	v.CompactionScore = float64(len(v.Levels[0])) / float64(trigger)
	v.CompactionLevel = 0
	for level := 1; level < len(v.Levels)-1; level++ {
		score := float64(v.Levels[level].TotalFileSize()) / float64(configs.MaxBytesForLevel(level))
		if score > v.CompactionScore {
			v.CompactionScore = score
			v.CompactionLevel = level
		}
	}
}

type overlayer interface {
	Start()
	Done()
	Overlap(f FileMeta)
}

type sizeOverlayer struct {
	start uint64
	total uint64
}

func (o *sizeOverlayer) Start() {
	o.total = o.start
}

func (o *sizeOverlayer) Overlap(f FileMeta) {
	o.total += f.Size
}

func (o *sizeOverlayer) Done() {
	o.start = o.total
}

type fileOverlayer struct {
	start int
	files FileList
}

func (o *fileOverlayer) Start() {
	o.files = o.files[:o.start]
}

func (o *fileOverlayer) Overlap(f FileMeta) {
	o.files = append(o.files, f)
}

func (o *fileOverlayer) Done() {
	o.start = len(o.files)
}

// overlapLevel0 restarts whenever an overlapping file widens the range,
// since level 0 files overlap each other.
func (v *Version) overlapLevel0(o overlayer, smallest, largest []byte) {
	ucmp := v.icmp.UserKeyComparator
	files := v.Levels[0]
	defer o.Done()
restart:
	o.Start()
	for _, f := range files {
		switch {
		case ucmp.Compare(smallest, f.Largest.UserKey()) > 0:
			continue
		case ucmp.Compare(largest, f.Smallest.UserKey()) < 0:
			continue
		}
		o.Overlap(f)
		lowerBoundExtended := ucmp.Compare(f.Smallest.UserKey(), smallest) < 0
		upperBoundExtended := ucmp.Compare(f.Largest.UserKey(), largest) > 0
		if lowerBoundExtended || upperBoundExtended {
			if lowerBoundExtended {
				smallest = f.Smallest.UserKey()
			}
			if upperBoundExtended {
				largest = f.Largest.UserKey()
			}
			goto restart
		}
	}
}

// overlapLeveln reports files of level overlapping user key range
// [smallest, largest]. Nil bounds are unbounded.
func (v *Version) overlapLeveln(o overlayer, level int, smallest, largest []byte) {
	files := v.Levels[level]
	if len(files) == 0 {
		o.Start()
		o.Done()
		return
	}
	if smallest == nil || largest == nil {
		lo, hi := v.userRangeOf(files)
		if smallest == nil {
			smallest = lo
		}
		if largest == nil {
			largest = hi
		}
	}
	if level == 0 {
		v.overlapLevel0(o, smallest, largest)
		return
	}
	ucmp := v.icmp.UserKeyComparator
	o.Start()
	defer o.Done()
	n := len(files)
	i := sort.Search(n, func(i int) bool { return ucmp.Compare(smallest, files[i].Largest.UserKey()) <= 0 })
	for ; i < n; i++ {
		if ucmp.Compare(largest, files[i].Smallest.UserKey()) < 0 {
			break
		}
		o.Overlap(files[i])
	}
}

func (v *Version) userRangeOf(files FileList) (smallest, largest []byte) {
	lo, hi := v.rangeOf(files)
	return lo.UserKey(), hi.UserKey()
}

func (v *Version) appendOverlappingFiles(level int, smallest, largest []byte, files FileList) FileList {
	var collector fileOverlayer
	collector.start = len(files)
	collector.files = files
	v.overlapLeveln(&collector, level, smallest, largest)
	return collector.files
}

// OverlappingFiles returns files of level overlapping user key range
// [smallest, largest]. Nil bounds are unbounded.
func (v *Version) OverlappingFiles(level int, smallest, largest []byte) FileList {
	return v.appendOverlappingFiles(level, smallest, largest, nil)
}

func (v *Version) overlappingSize(level int, smallest, largest []byte) uint64 {
	var size sizeOverlayer
	v.overlapLeveln(&size, level, smallest, largest)
	return size.total
}

func (v *Version) rangeOf(files FileList) (smallest, largest keys.InternalKey) {
	smallest, largest = files[0].Smallest, files[0].Largest
	for _, f := range files[1:] {
		if v.icmp.Compare(f.Smallest, smallest) < 0 {
			smallest = f.Smallest
		}
		if v.icmp.Compare(f.Largest, largest) > 0 {
			largest = f.Largest
		}
	}
	return smallest, largest
}

func (v *Version) unionOf(smallest0, largest0, smallest1, largest1 keys.InternalKey) (smallest, largest keys.InternalKey) {
	return keys.Min(v.icmp, smallest0, smallest1), keys.Max(v.icmp, largest0, largest1)
}

func (v *Version) maxFileSize() uint64 {
	if v.options.MaxFileSize <= 0 {
		return options.DefaultMaxFileSize
	}
	return uint64(v.options.MaxFileSize)
}

func (v *Version) pickCompactionInputs(c *Compaction) {
	level := c.Level
	files := v.Levels[level]
	inputs0 := c.Inputs[0][:0]
	pointer := v.CompactionPointers[level]
	switch {
	case len(pointer) == 0:
		inputs0 = append(inputs0, files[0])
	case level == 0:
		inputs0 = append(inputs0, files[0])
		for _, f := range files {
			if v.icmp.Compare(f.Largest, pointer) > 0 {
				inputs0[0] = f
				break
			}
		}
	default:
		n := len(files)
		i := sort.Search(n, func(i int) bool { return v.icmp.Compare(files[i].Largest, pointer) > 0 })
		if i == n {
			i = 0
		}
		inputs0 = append(inputs0, files[i])
	}
	if level == 0 {
		smallest, largest := inputs0[0].Smallest.UserKey(), inputs0[0].Largest.UserKey()
		inputs0 = v.appendOverlappingFiles(0, smallest, largest, inputs0[:0])
	}
	c.Inputs[0] = inputs0
}

// setupOtherInputs fills level+1 inputs, grows level inputs when that adds
// no level+1 file, and collects grandparents.
func (v *Version) setupOtherInputs(c *Compaction) {
	smallest, largest := v.rangeOf(c.Inputs[0])
	c.Inputs[1] = v.appendOverlappingFiles(c.Level+1, smallest.UserKey(), largest.UserKey(), c.Inputs[1][:0])

	allSmallest, allLargest := smallest, largest
	if len(c.Inputs[1]) != 0 {
		smallest1, largest1 := v.rangeOf(c.Inputs[1])
		allSmallest, allLargest = v.unionOf(smallest, largest, smallest1, largest1)

		expandeds0 := v.appendOverlappingFiles(c.Level, allSmallest.UserKey(), allLargest.UserKey(), nil)
		inputs1Size := c.Inputs[1].TotalFileSize()
		expandeds0Size := expandeds0.TotalFileSize()
		if len(expandeds0) > len(c.Inputs[0]) && expandeds0Size+inputs1Size < 25*v.maxFileSize() {
			newSmallest, newLargest := v.rangeOf(expandeds0)
			expandeds1 := v.appendOverlappingFiles(c.Level+1, newSmallest.UserKey(), newLargest.UserKey(), nil)
			if len(expandeds1) == len(c.Inputs[1]) {
				c.Inputs[0] = expandeds0
				c.Inputs[1] = expandeds1
				largest = newLargest
				smallest1, largest1 = v.rangeOf(expandeds1)
				allSmallest, allLargest = v.unionOf(newSmallest, newLargest, smallest1, largest1)
			}
		}
	}

	if grandparentsLevel := c.Level + 2; grandparentsLevel < configs.NumberLevels {
		c.Grandparents = v.appendOverlappingFiles(grandparentsLevel, allSmallest.UserKey(), allLargest.UserKey(), c.Grandparents[:0])
	}
	c.MaxOutputFileSize = v.maxFileSize()
	c.MaxGrandparentOverlappingBytes = configs.MaxGrandparentOverlappingFactor * v.maxFileSize()
	c.NextCompactPointer = largest
}

func (v *Version) newCompaction(level int) *Compaction {
	c := &Compaction{Level: level, Base: v.Retain(), icmp: v.icmp}
	return c
}

func (v *Version) pickCompaction() *Compaction {
	if v.CompactionScore < 1.0 || len(v.Levels[v.CompactionLevel]) == 0 {
		return nil
	}
	c := v.newCompaction(v.CompactionLevel)
	v.pickCompactionInputs(c)
	v.setupOtherInputs(c)
	return c
}

// compactRange picks files of level overlapping user key range [begin,
// end]. Nil bounds are unbounded.
func (v *Version) compactRange(level int, begin, end []byte) *Compaction {
	inputs := v.OverlappingFiles(level, begin, end)
	if len(inputs) == 0 {
		return nil
	}
	if level > 0 {
		limit := v.maxFileSize()
		var total uint64
		for i, f := range inputs {
			total += f.Size
			if total >= limit && i+1 < len(inputs) {
				inputs = inputs[:i+1]
				break
			}
		}
	}
	c := v.newCompaction(level)
	c.Inputs[0] = inputs
	v.setupOtherInputs(c)
	return c
}

func (v *Version) edit(edit *Edit) (*Version, error) {
	v1 := v.dup()
	if err := v1.apply(edit); err != nil {
		return nil, err
	}
	v1.computeCompactionScore()
	return v1, nil
}

func (v *Version) dup() *Version {
	dup := &Version{set: v.set, icmp: v.icmp, options: v.options, cache: v.cache}
	for level := 0; level < configs.NumberLevels; level++ {
		dup.Levels[level] = append(FileList(nil), v.Levels[level]...)
	}
	dup.CompactionPointers = v.CompactionPointers
	return dup
}

func (v *Version) apply(edit *Edit) error {
	for _, deleted := range edit.DeletedFiles {
		files := v.Levels[deleted.Level]
		i := files.Index(deleted.Number)
		if i == -1 {
			return errors.Newf("lsmtail: no file numbered %06d in level %d", deleted.Number, deleted.Level)
		}
		v.Levels[deleted.Level] = append(files[:i], files[i+1:]...)
	}
	for _, added := range edit.AddedFiles {
		v.Levels[added.Level] = append(v.Levels[added.Level], added.FileMeta)
	}
	for _, pointer := range edit.CompactPointers {
		v.CompactionPointers[pointer.Level] = pointer.Largest
	}
	return v.sortFiles()
}

func (v *Version) addLiveFiles(live map[uint64]struct{}) {
	for level := 0; level < configs.NumberLevels; level++ {
		for _, f := range v.Levels[level] {
			live[f.Number] = struct{}{}
		}
	}
}
