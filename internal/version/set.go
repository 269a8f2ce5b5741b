package version

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/files"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/logger"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table"
)

// Set owns the current Version and every Version still pinned. It deletes
// table files once no pinned Version references them.
type Set struct {
	dbname  string
	options *options.Options
	fs      file.FileSystem
	logger  logger.Logger
	cache   *table.Cache

	lastSequence   atomic.Uint64
	nextFileNumber atomic.Uint64

	mu       sync.Mutex
	closed   bool
	current  *Version
	versions map[*Version]struct{}
	pending  map[uint64]struct{}
	obsolete uint64
}

// NewSet creates a set with an empty current version. nextFileNumber is
// the first file number to hand out.
func NewSet(dbname string, opts *options.Options, cache *table.Cache, nextFileNumber uint64) *Set {
	s := &Set{
		dbname:   dbname,
		options:  opts,
		fs:       opts.FileSystem,
		logger:   opts.Logger,
		cache:    cache,
		versions: make(map[*Version]struct{}),
		pending:  make(map[uint64]struct{}),
	}
	s.nextFileNumber.Store(nextFileNumber)
	v := &Version{set: s, icmp: opts.Comparator, options: opts, cache: cache}
	v.computeCompactionScore()
	s.install(v)
	return s
}

// Cache returns the table cache.
func (s *Set) Cache() *table.Cache {
	return s.cache
}

// Current returns the current version pinned. Callers release it.
func (s *Set) Current() *Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Retain()
}

func (s *Set) LastSequence() keys.Sequence {
	return keys.Sequence(s.lastSequence.Load())
}

func (s *Set) SetLastSequence(seq keys.Sequence) {
	s.lastSequence.Store(uint64(seq))
}

// NewFileNumber allocates a file number and marks it pending until
// Apply installs it or Forget drops it.
func (s *Set) NewFileNumber() uint64 {
	number := s.nextFileNumber.Add(1) - 1
	s.mu.Lock()
	s.pending[number] = struct{}{}
	s.mu.Unlock()
	return number
}

// Forget drops a pending file number whose file was never installed.
func (s *Set) Forget(number uint64) {
	s.mu.Lock()
	delete(s.pending, number)
	s.mu.Unlock()
}

// ObsoleteFiles returns how many files were deleted so far.
func (s *Set) ObsoleteFiles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obsolete
}

// LiveFiles returns numbers of files referenced by pinned versions or
// pending installation, sorted.
func (s *Set) LiveFiles() []uint64 {
	s.mu.Lock()
	live := s.liveFiles()
	s.mu.Unlock()
	numbers := make([]uint64, 0, len(live))
	for number := range live {
		numbers = append(numbers, number)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

func (s *Set) liveFiles() map[uint64]struct{} {
	live := make(map[uint64]struct{}, len(s.pending))
	for number := range s.pending {
		live[number] = struct{}{}
	}
	for v := range s.versions {
		v.addLiveFiles(live)
	}
	return live
}

// Apply installs the version edit produces from current. The returned
// version is pinned for the caller.
func (s *Set) Apply(edit *Edit) (*Version, error) {
	s.mu.Lock()
	v, err := s.current.edit(edit)
	if err != nil {
		err = fmt.Errorf("%w\nversion:\n%s\nedit:\n%s", err, s.current, edit)
		s.mu.Unlock()
		return nil, err
	}
	for _, f := range edit.AddedFiles {
		delete(s.pending, f.Number)
	}
	old := s.install(v)
	v.Retain()
	s.mu.Unlock()
	old.Release()
	return v, nil
}

func (s *Set) install(v *Version) (old *Version) {
	v.refs.Store(1)
	s.versions[v] = struct{}{}
	old, s.current = s.current, v
	return old
}

func (s *Set) releaseVersion(v *Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, v)
	if s.closed {
		return
	}
	live := s.liveFiles()
	for level := 0; level < configs.NumberLevels; level++ {
		for _, f := range v.Levels[level] {
			if _, ok := live[f.Number]; ok {
				continue
			}
			live[f.Number] = struct{}{}
			s.deleteFile(f.Number)
		}
	}
}

func (s *Set) deleteFile(number uint64) {
	s.cache.Evict(number)
	name := files.TableFileName(s.dbname, number)
	if err := s.fs.Remove(name); err != nil {
		s.logger.Warnf("delete obsolete table %06d: %s", number, err)
		return
	}
	s.obsolete++
	s.logger.Infof("delete obsolete table %06d", number)
}

// PickCompaction returns a compaction for the level most over budget, or
// nil. Callers release it.
func (s *Set) PickCompaction() *Compaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.pickCompaction()
}

// NeedsCompaction reports whether some level is over budget.
func (s *Set) NeedsCompaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.CompactionScore >= 1.0
}

// CompactRange returns a compaction of files in level overlapping user key
// range [begin, end], or nil if there is none. Nil bounds are unbounded.
func (s *Set) CompactRange(level int, begin, end []byte) *Compaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.compactRange(level, begin, end)
}

// Close stops file deletion and drops the current version.
func (s *Set) Close() {
	s.mu.Lock()
	s.closed = true
	v := s.current
	s.mu.Unlock()
	v.Release()
}
