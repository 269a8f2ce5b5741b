package compactor_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kezhuw/lsmtail/internal/compactor"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/files"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/memtable"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table"
	"github.com/kezhuw/lsmtail/internal/version"
)

type CompactorTestSuite struct {
	suite.Suite

	dbname  string
	options options.Options
	cache   *table.Cache
	set     *version.Set
}

func TestCompactor(t *testing.T) {
	suite.Run(t, new(CompactorTestSuite))
}

func (s *CompactorTestSuite) SetupTest() {
	s.dbname = s.T().TempDir()
	s.options = options.DefaultOptions
	s.options.Level0CompactionTrigger = 2
	s.cache = table.NewCache(s.dbname, &s.options, table.NewBlockCache(1<<20))
	s.set = version.NewSet(s.dbname, &s.options, s.cache, 1)
}

func (s *CompactorTestSuite) TearDownTest() {
	s.set.Close()
	s.Require().NoError(s.cache.Close())
}

type entry struct {
	key   string
	seq   keys.Sequence
	kind  keys.Kind
	value string
}

func (s *CompactorTestSuite) newMem(entries ...entry) *memtable.MemTable {
	mem := memtable.New(memtable.Options{Comparator: s.options.Comparator})
	for _, e := range entries {
		mem.Add(e.seq, e.kind, []byte(e.key), []byte(e.value))
	}
	return mem
}

func (s *CompactorTestSuite) flush(smallest keys.Sequence, entries ...entry) *version.Edit {
	c := compactor.NewMemTableCompactor(s.dbname, s.set, smallest, s.newMem(entries...), &s.options)
	s.Equal(-1, c.Level())
	var edit version.Edit
	s.Require().NoError(c.Compact(&edit))
	return &edit
}

func (s *CompactorTestSuite) install(edit *version.Edit) *version.Version {
	v, err := s.set.Apply(edit)
	s.Require().NoError(err)
	return v
}

func (s *CompactorTestSuite) readFile(f version.FileMeta) []string {
	it := s.cache.NewIterator(f.Number, f.Size, &options.ReadOptions{})
	defer it.Close()
	var entries []string
	for ok := it.First(); ok; ok = it.Next() {
		ukey, seq, kind := keys.InternalKey(it.Key()).Split()
		entries = append(entries, fmt.Sprintf("%s@%d:%s", ukey, seq, kind))
	}
	s.Require().NoError(it.Err())
	return entries
}

func (s *CompactorTestSuite) TestFlushDropsShadowedVersions() {
	entries := []entry{
		{"a", 1, keys.Value, "a1"},
		{"a", 2, keys.Value, "a2"},
		{"b", 3, keys.Delete, ""},
	}
	edit := s.flush(3, entries...)
	s.Require().Len(edit.AddedFiles, 1)
	s.Equal(0, edit.AddedFiles[0].Level)
	f := edit.AddedFiles[0].FileMeta
	s.Equal([]string{"a@2:" + keys.Value.String(), "b@3:" + keys.Delete.String()}, s.readFile(f))

	edit = s.flush(1, entries...)
	s.Len(s.readFile(edit.AddedFiles[0].FileMeta), 3)
}

func (s *CompactorTestSuite) TestFlushEmptyMemTable() {
	edit := s.flush(0)
	s.Empty(edit.AddedFiles)
	s.Empty(s.set.LiveFiles())
}

func (s *CompactorTestSuite) TestRewindRemovesOutputs() {
	c := compactor.NewMemTableCompactor(s.dbname, s.set, 1, s.newMem(entry{"a", 1, keys.Value, "a"}), &s.options)
	var edit version.Edit
	s.Require().NoError(c.Compact(&edit))
	number := edit.AddedFiles[0].Number
	s.True(s.options.FileSystem.Exists(files.TableFileName(s.dbname, number)))
	s.False(s.options.FileSystem.Exists(files.TempFileName(s.dbname, number)))
	s.Contains(s.set.LiveFiles(), number)

	c.Rewind()
	s.False(s.options.FileSystem.Exists(files.TableFileName(s.dbname, number)))
	s.NotContains(s.set.LiveFiles(), number)
}

func (s *CompactorTestSuite) TestLevelCompaction() {
	s.install(s.flush(2, entry{"a", 1, keys.Value, "a1"}, entry{"b", 2, keys.Value, "b2"})).Release()
	s.install(s.flush(4, entry{"a", 3, keys.Value, "a3"}, entry{"b", 4, keys.Delete, ""})).Release()

	c := s.set.PickCompaction()
	s.Require().NotNil(c)
	defer c.Release()
	s.Equal(0, c.Level)
	s.False(c.IsTrivialMove())

	lc := compactor.NewLevelCompactor(s.dbname, s.set, 4, c, &s.options)
	s.Equal(0, lc.Level())
	var edit version.Edit
	s.Require().NoError(lc.Compact(&edit))
	s.Len(edit.DeletedFiles, 2)
	s.Require().Len(edit.AddedFiles, 1)
	s.Equal(1, edit.AddedFiles[0].Level)
	s.Equal([]string{"a@3:" + keys.Value.String()}, s.readFile(edit.AddedFiles[0].FileMeta))

	v := s.install(&edit)
	defer v.Release()
	s.Equal(0, v.NumFiles(0))
	s.Equal(1, v.NumFiles(1))
	value, err := v.Get(keys.NewInternalKey([]byte("a"), keys.MaxSequence, keys.Seek), &options.ReadOptions{})
	s.NoError(err)
	s.Equal([]byte("a3"), value)
	_, err = v.Get(keys.NewInternalKey([]byte("b"), keys.MaxSequence, keys.Seek), &options.ReadOptions{})
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *CompactorTestSuite) TestLevelCompactionKeepsVisibleVersions() {
	s.install(s.flush(0, entry{"a", 1, keys.Value, "a1"})).Release()
	s.install(s.flush(0, entry{"a", 2, keys.Delete, ""})).Release()

	c := s.set.PickCompaction()
	s.Require().NotNil(c)
	defer c.Release()
	lc := compactor.NewLevelCompactor(s.dbname, s.set, 1, c, &s.options)
	var edit version.Edit
	s.Require().NoError(lc.Compact(&edit))
	s.Require().Len(edit.AddedFiles, 1)
	s.Equal([]string{"a@2:" + keys.Delete.String(), "a@1:" + keys.Value.String()}, s.readFile(edit.AddedFiles[0].FileMeta))
}

func (s *CompactorTestSuite) TestTrivialMove() {
	edit := s.flush(1, entry{"a", 1, keys.Value, "a1"})
	s.install(edit).Release()
	f := edit.AddedFiles[0].FileMeta

	c := s.set.CompactRange(0, nil, nil)
	s.Require().NotNil(c)
	defer c.Release()
	s.True(c.IsTrivialMove())

	mc := compactor.NewLevelCompactor(s.dbname, s.set, 1, c, &s.options)
	var move version.Edit
	s.Require().NoError(mc.Compact(&move))
	v := s.install(&move)
	defer v.Release()
	s.Equal([]uint64{f.Number}, v.Levels[1].Numbers())
	s.Equal(0, v.NumFiles(0))
	s.True(s.options.FileSystem.Exists(files.TableFileName(s.dbname, f.Number)))
}
