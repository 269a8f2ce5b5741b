package forward_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/files"
	"github.com/kezhuw/lsmtail/internal/forward"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/memtable"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/superversion"
	"github.com/kezhuw/lsmtail/internal/table"
	"github.com/kezhuw/lsmtail/internal/version"
)

type ForwardTestSuite struct {
	suite.Suite

	dbname   string
	options  options.Options
	cache    *table.Cache
	set      *version.Set
	registry *superversion.Registry
	mem      *memtable.MemTable
	seq      keys.Sequence
	metrics  *forward.Metrics
}

func TestForward(t *testing.T) {
	suite.Run(t, new(ForwardTestSuite))
}

func (s *ForwardTestSuite) SetupTest() {
	s.dbname = s.T().TempDir()
	s.options = options.DefaultOptions
	s.options.DisableAutoCompaction = true
	s.cache = table.NewCache(s.dbname, &s.options, table.NewBlockCache(1<<20))
	s.set = version.NewSet(s.dbname, &s.options, s.cache, 1)
	s.mem = s.newMem()
	s.registry = superversion.NewRegistry(s.mem, s.set.Current())
	s.seq = 0
	s.metrics = forward.NewMetrics(nil)
}

func (s *ForwardTestSuite) TearDownTest() {
	s.registry.Close()
	s.set.Close()
	s.Require().NoError(s.cache.Close())
}

func (s *ForwardTestSuite) newMem() *memtable.MemTable {
	return memtable.New(memtable.Options{Comparator: s.options.Comparator})
}

func (s *ForwardTestSuite) put(key, value string) {
	s.seq++
	s.mem.Add(s.seq, keys.Value, []byte(key), []byte(value))
	s.set.SetLastSequence(s.seq)
}

// writeTable drains it into a new table file.
func (s *ForwardTestSuite) writeTable(it iterator.Iterator) version.FileMeta {
	defer it.Close()
	number := s.set.NewFileNumber()
	f, err := s.options.FileSystem.Open(files.TableFileName(s.dbname, number), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	s.Require().NoError(err)
	defer f.Close()
	w := table.NewWriter(f, &s.options)
	for ok := it.First(); ok; ok = it.Next() {
		s.Require().NoError(w.Add(it.Key(), it.Value()))
	}
	s.Require().NoError(w.Finish())
	return version.FileMeta{
		Number:   number,
		Size:     w.FileSize(),
		Smallest: keys.InternalKey(w.Smallest()).Dup(),
		Largest:  keys.InternalKey(w.Largest()).Dup(),
	}
}

// flush moves the active memtable into a level 0 file.
func (s *ForwardTestSuite) flush() version.FileMeta {
	f := s.writeTable(s.mem.NewIterator())
	var edit version.Edit
	edit.AddFile(0, f)
	v, err := s.set.Apply(&edit)
	s.Require().NoError(err)
	s.mem = s.newMem()
	s.registry.Install(s.mem, nil, v)
	return f
}

// addFile writes user keys with fresh sequences into a file at level.
func (s *ForwardTestSuite) addFile(level int, ukeys ...string) version.FileMeta {
	mem := s.newMem()
	for _, key := range ukeys {
		s.seq++
		mem.Add(s.seq, keys.Value, []byte(key), []byte(key))
	}
	s.set.SetLastSequence(s.seq)
	f := s.writeTable(mem.NewIterator())
	var edit version.Edit
	edit.AddFile(level, f)
	v, err := s.set.Apply(&edit)
	s.Require().NoError(err)
	s.registry.Install(s.mem, nil, v)
	return f
}

func (s *ForwardTestSuite) newIterator(ro *options.ReadOptions) *forward.Iterator {
	return forward.New(s.registry, s.options.Comparator, s.options.PrefixExtractor, ro, s.metrics)
}

func seekKey(ukey string) []byte {
	return keys.NewInternalKey([]byte(ukey), keys.MaxSequence, keys.Seek)
}

func userKey(it *forward.Iterator) string {
	return string(keys.InternalKey(it.Key()).UserKey())
}

func drain(it *forward.Iterator, ok bool) []string {
	var ukeys []string
	for ; ok; ok = it.Next() {
		ukeys = append(ukeys, userKey(it))
	}
	return ukeys
}

func (s *ForwardTestSuite) TestMergeAllSources() {
	s.addFile(1, "d", "e")
	s.addFile(0, "a", "c")
	s.put("a", "a-new")
	s.put("b", "b")

	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.Equal(uint64(0), it.SuperVersionNumber())
	s.Equal([]string{"a", "a", "b", "c", "d", "e"}, drain(it, it.First()))
	s.NoError(it.Err())

	s.True(it.Seek(seekKey("a")))
	s.Equal([]byte("a-new"), it.Value())
	s.Equal(s.registry.Number(), it.SuperVersionNumber())
}

func (s *ForwardTestSuite) TestMutableWritesVisibleOnSeek() {
	s.put("a", "a")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.True(it.Seek(seekKey("a")))
	s.False(it.Next())

	s.put("b", "b")
	s.True(it.Seek(seekKey("a")))
	s.Equal([]string{"a", "b"}, drain(it, true))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rebuilds))
}

func (s *ForwardTestSuite) TestNextFollowsFlush() {
	s.put("a", "a")
	s.put("b", "b")
	s.put("c", "c")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.Require().True(it.First())
	number := it.SuperVersionNumber()

	s.flush()
	s.True(it.Next())
	s.Equal("b", userKey(it))
	s.Greater(it.SuperVersionNumber(), number)
	s.True(it.Next())
	s.Equal("c", userKey(it))
	s.False(it.Next())
	s.NoError(it.Err())
}

func (s *ForwardTestSuite) TestNextSeesWritesAfterFlush() {
	s.put("a", "a")
	s.flush()
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.Require().True(it.First())
	s.Equal("a", userKey(it))

	s.put("b", "b")
	s.put("0", "0")
	s.True(it.Next())
	s.Equal("b", userKey(it))
	s.False(it.Next())
	s.NoError(it.Err())
}

func (s *ForwardTestSuite) TestNextSeesWritesAfterMutableExhausted() {
	s.addFile(0, "b", "d")
	s.put("a", "a")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.Require().True(it.First())
	s.Equal("a", userKey(it))
	s.Require().True(it.Next())
	s.Equal("b", userKey(it))

	s.put("b", "b-new")
	s.put("c", "c")
	s.Equal([]string{"b", "c", "d"}, drain(it, true))
	s.NoError(it.Err())
}

func (s *ForwardTestSuite) TestRenewCarriesUnchangedFiles() {
	s.put("a", "a")
	s.put("b", "b")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.Require().True(it.First())

	s.flush()
	s.True(it.Seek(seekKey("a")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Renewals.WithLabelValues("rebuild")))

	s.addFile(1, "x", "y")
	s.True(it.Seek(seekKey("a")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Renewals.WithLabelValues("carry")))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.Renewals.WithLabelValues("rebuild")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rebuilds))
	s.Equal([]string{"a", "b", "x", "y"}, drain(it, true))
}

func (s *ForwardTestSuite) TestSeekWithinImmutableGapSkipsReseek() {
	s.addFile(0, "k10", "k20", "k30")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()

	s.True(it.Seek(seekKey("k05")))
	s.Equal("k10", userKey(it))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ImmutableSeeks))

	s.True(it.Seek(seekKey("k08")))
	s.Equal("k10", userKey(it))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ImmutableSeeks))

	s.True(it.Seek(seekKey("k15")))
	s.Equal("k20", userKey(it))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.ImmutableSeeks))

	// Backward seeks probe again.
	s.True(it.Seek(seekKey("k00")))
	s.Equal("k10", userKey(it))
	s.Equal(float64(3), testutil.ToFloat64(s.metrics.ImmutableSeeks))
}

func (s *ForwardTestSuite) TestUpperBoundTrimsSlots() {
	s.addFile(0, "a0", "a1", "a2")
	s.addFile(0, "c0", "c1")
	it := s.newIterator(&options.ReadOptions{UpperBound: []byte("b")})
	defer it.Close()

	s.Equal([]string{"a0", "a1", "a2"}, drain(it, it.First()))
	s.NoError(it.Err())
	deleted, live := it.DeletedSlots()
	s.Equal(1, deleted)
	s.Equal(1, live)

	s.False(it.Seek(seekKey("b")))
	deleted, live = it.DeletedSlots()
	s.Equal(2, deleted)
	s.Equal(0, live)

	s.addFile(1, "z")
	s.False(it.Seek(seekKey("b")))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.Renewals.WithLabelValues("defer")))

	s.True(it.Seek(seekKey("a1")))
	s.Equal("a1", userKey(it))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.Rebuilds))
}

func (s *ForwardTestSuite) TestUpperBoundAppliesToMemtable() {
	s.put("a", "a")
	s.put("b", "b")
	it := s.newIterator(&options.ReadOptions{UpperBound: []byte("b")})
	defer it.Close()
	s.Equal([]string{"a"}, drain(it, it.First()))
	s.False(it.Seek(seekKey("b")))
	s.NoError(it.Err())
}

func (s *ForwardTestSuite) TestPrefixSkipsFiles() {
	s.options.PrefixExtractor = keys.NewFixedPrefixExtractor(2)
	s.addFile(0, "cc0", "cc1")
	s.addFile(0, "aa0", "bb1", "dd0")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()

	// The first file cannot hold prefix "bb" and is left alone.
	s.True(it.Seek(seekKey("bb0")))
	s.Equal("bb1", userKey(it))
	s.True(it.Next())
	s.Equal("dd0", userKey(it))

	s.False(it.Seek(seekKey("ee0")))
	deleted, _ := it.DeletedSlots()
	s.Equal(0, deleted)
}

func (s *ForwardTestSuite) TestCacheOnlyTierIsIncomplete() {
	f := s.addFile(0, "a", "b")
	it := s.newIterator(&options.ReadOptions{Tier: options.BlockCacheTier})
	defer it.Close()

	s.False(it.Seek(seekKey("a")))
	s.True(errors.IsIncomplete(it.Err()))

	warm := s.cache.NewIterator(f.Number, f.Size, &options.ReadOptions{})
	for ok := warm.First(); ok; ok = warm.Next() {
	}
	s.Require().NoError(warm.Close())

	s.True(it.Seek(seekKey("a")))
	s.NoError(it.Err())
	s.Equal([]string{"a", "b"}, drain(it, true))
}

func (s *ForwardTestSuite) TestClosedRegistry() {
	s.put("a", "a")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.True(it.First())

	s.registry.Close()
	s.False(it.Seek(seekKey("a")))
	s.ErrorIs(it.Err(), errors.ErrDBClosed)
	s.registry = superversion.NewRegistry(s.mem, s.set.Current())
}

func (s *ForwardTestSuite) TestClosedIterator() {
	it := s.newIterator(&options.ReadOptions{})
	s.NoError(it.Close())
	s.False(it.First())
	s.ErrorIs(it.Err(), errors.ErrIteratorClosed)
	s.NoError(it.Close())
}

func (s *ForwardTestSuite) TestManySources() {
	for i := 0; i < 5; i++ {
		s.addFile(0, fmt.Sprintf("k%d", i), fmt.Sprintf("k%d", i+5))
	}
	s.addFile(2, "k99")
	it := s.newIterator(&options.ReadOptions{})
	defer it.Close()
	s.Equal([]string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9", "k99"}, drain(it, it.First()))
}
