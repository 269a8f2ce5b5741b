package leveldb

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kezhuw/lsmtail/internal/batch"
	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/options"
)

type DBTestSuite struct {
	suite.Suite

	dbname  string
	options options.Options
	db      *DB
}

func TestDB(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func (s *DBTestSuite) SetupTest() {
	s.dbname = s.T().TempDir()
	s.options = options.DefaultOptions
	s.options.DisableAutoCompaction = true
	s.open()
}

func (s *DBTestSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *DBTestSuite) open() {
	db, err := Open(s.dbname, &s.options, nil)
	s.Require().NoError(err)
	s.db = db
}

func (s *DBTestSuite) put(key, value string) {
	s.Require().NoError(s.db.Put([]byte(key), []byte(value), &options.DefaultWriteOptions))
}

func (s *DBTestSuite) delete(key string) {
	s.Require().NoError(s.db.Delete([]byte(key), &options.DefaultWriteOptions))
}

func (s *DBTestSuite) get(key string) (string, error) {
	value, err := s.db.Get([]byte(key), &options.DefaultReadOptions)
	return string(value), err
}

func (s *DBTestSuite) scan(it Iterator) []string {
	var entries []string
	for ok := it.First(); ok; ok = it.Next() {
		entries = append(entries, string(it.Key())+"="+string(it.Value()))
	}
	s.Require().NoError(it.Err())
	return entries
}

func (s *DBTestSuite) TestPutGetDelete() {
	s.put("a", "1")
	s.put("b", "2")
	s.put("a", "3")
	value, err := s.get("a")
	s.NoError(err)
	s.Equal("3", value)

	s.delete("a")
	_, err = s.get("a")
	s.True(errors.Is(err, errors.ErrNotFound))
	_, err = s.get("c")
	s.True(errors.Is(err, errors.ErrNotFound))
}

func (s *DBTestSuite) TestWriteBatch() {
	var b batch.Batch
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("a"))
	s.Require().NoError(s.db.Write(&b, &options.DefaultWriteOptions))

	_, err := s.get("a")
	s.True(errors.Is(err, errors.ErrNotFound))
	value, err := s.get("b")
	s.NoError(err)
	s.Equal("2", value)

	var empty batch.Batch
	s.NoError(s.db.Write(&empty, &options.DefaultWriteOptions))
}

func (s *DBTestSuite) TestConcurrentWrites() {
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("w%d-%03d", w, i)
				s.NoError(s.db.Put([]byte(key), []byte(key), &options.DefaultWriteOptions))
			}
		}(w)
	}
	wg.Wait()

	it := s.db.NewIterator(&options.DefaultReadOptions)
	defer it.Close()
	s.Len(s.scan(it), 8*50)
}

func (s *DBTestSuite) TestFlushAndCompactRange() {
	for i := 0; i < 100; i++ {
		s.put(fmt.Sprintf("%03d", i), fmt.Sprint(i))
	}
	before := s.db.SuperVersionNumber()
	s.Require().NoError(s.db.Flush())
	s.Greater(s.db.SuperVersionNumber(), before)
	s.Equal(1, s.db.LevelFiles()[0])

	for i := 0; i < 100; i += 2 {
		s.delete(fmt.Sprintf("%03d", i))
	}
	s.Require().NoError(s.db.Flush())
	s.Equal(2, s.db.LevelFiles()[0])

	s.Require().NoError(s.db.CompactRange(nil, nil))
	levels := s.db.LevelFiles()
	s.Equal(0, levels[0])
	s.NotZero(levels[1])

	for i := 0; i < 100; i++ {
		value, err := s.get(fmt.Sprintf("%03d", i))
		if i%2 == 0 {
			s.True(errors.Is(err, errors.ErrNotFound), "key %03d", i)
		} else {
			s.NoError(err)
			s.Equal(fmt.Sprint(i), value)
		}
	}

	it := s.db.NewIterator(&options.DefaultReadOptions)
	defer it.Close()
	s.Len(s.scan(it), 50)
}

func (s *DBTestSuite) TestStats() {
	for i := 0; i < 2; i++ {
		s.put(fmt.Sprint(i), "v")
		s.Require().NoError(s.db.Flush())
	}
	st := s.db.Stats()
	s.Equal(2, st.LevelFiles[0])
	s.Equal(2, st.LiveFiles)
	s.Zero(st.ObsoleteFiles)
	s.Equal(s.db.SuperVersionNumber(), st.SuperVersion)

	s.Require().NoError(s.db.CompactRange(nil, nil))
	s.Eventually(func() bool {
		return s.db.Stats().ObsoleteFiles == 2
	}, 5*time.Second, 10*time.Millisecond)
	st = s.db.Stats()
	s.Equal(1, st.LiveFiles)

	value, err := s.get("0")
	s.NoError(err)
	s.Equal("v", value)
	st = s.db.Stats()
	s.NotZero(st.BlockCacheHits + st.BlockCacheMisses)
}

func (s *DBTestSuite) TestFlushEmptyMemTable() {
	s.Require().NoError(s.db.Flush())
	s.Equal(0, s.db.LevelFiles()[0])
}

func (s *DBTestSuite) TestAutoCompaction() {
	s.Require().NoError(s.db.Close())
	s.db = nil
	s.options.DisableAutoCompaction = false
	s.options.Level0CompactionTrigger = 2
	s.open()

	for round := 0; round < 4; round++ {
		for i := 0; i < 10; i++ {
			s.put(fmt.Sprintf("%02d", i), fmt.Sprint(round))
		}
		s.Require().NoError(s.db.Flush())
	}
	s.Require().NoError(s.db.WaitForCompaction())
	s.Less(s.db.LevelFiles()[0], 2)

	value, err := s.get("05")
	s.NoError(err)
	s.Equal("3", value)
}

func (s *DBTestSuite) TestNoSlowdownFailsStalledWrite() {
	s.Require().NoError(s.db.Close())
	s.db = nil
	s.options.WriteBufferSize = 1
	s.open()

	for i := 0; i < configs.L0StopWritesTrigger; i++ {
		s.put(fmt.Sprintf("%02d", i), "v")
		s.Require().NoError(s.db.Flush())
	}
	s.Equal(configs.L0StopWritesTrigger, s.db.LevelFiles()[0])

	// The active memtable is empty, so this write needs no room.
	s.Require().NoError(s.db.Put([]byte("x"), []byte("v"), &options.WriteOptions{NoSlowdown: true}))
	err := s.db.Put([]byte("y"), []byte("v"), &options.WriteOptions{NoSlowdown: true})
	s.Require().Error(err)
	s.True(errors.IsIncomplete(err))

	_, err = s.get("y")
	s.True(errors.Is(err, errors.ErrNotFound))
}

func (s *DBTestSuite) TestTailingIteratorObservesWrites() {
	it := s.db.NewIterator(&options.ReadOptions{Tailing: true})
	defer it.Close()
	s.Zero(it.SuperVersionNumber())

	s.False(it.First())
	s.NoError(it.Err())
	s.NotZero(it.SuperVersionNumber())

	s.put("a", "1")
	s.True(it.Seek([]byte("a")))
	s.Equal("a", string(it.Key()))
	s.Equal("1", string(it.Value()))

	s.put("b", "2")
	s.Require().NoError(s.db.Flush())
	s.True(it.Next())
	s.Equal("b", string(it.Key()))
	s.Equal(s.db.SuperVersionNumber(), it.SuperVersionNumber())
	s.False(it.Next())
	s.NoError(it.Err())
}

func (s *DBTestSuite) TestNonTailingIteratorKeepsView() {
	s.put("a", "1")
	it := s.db.NewIterator(&options.DefaultReadOptions)
	defer it.Close()
	number := s.db.SuperVersionNumber()

	s.put("b", "2")
	s.Require().NoError(s.db.Flush())
	s.Equal([]string{"a=1"}, s.scan(it))
	s.Equal(number, it.SuperVersionNumber())
}

func (s *DBTestSuite) TestIteratorSkipsDeletesAndOldVersions() {
	s.put("a", "1")
	s.put("b", "1")
	s.put("c", "1")
	s.Require().NoError(s.db.Flush())
	s.put("a", "2")
	s.delete("b")

	for _, tailing := range []bool{false, true} {
		it := s.db.NewIterator(&options.ReadOptions{Tailing: tailing})
		s.Equal([]string{"a=2", "c=1"}, s.scan(it), "tailing %v", tailing)
		s.NoError(it.Close())
	}
}

func (s *DBTestSuite) TestEmptyKey() {
	s.put("", "empty")
	s.put("a", "1")
	value, err := s.get("")
	s.NoError(err)
	s.Equal("empty", value)

	s.Require().NoError(s.db.Flush())
	value, err = s.get("")
	s.NoError(err)
	s.Equal("empty", value)
	for _, tailing := range []bool{false, true} {
		it := s.db.NewIterator(&options.ReadOptions{Tailing: tailing})
		s.Equal([]string{"=empty", "a=1"}, s.scan(it), "tailing %v", tailing)
		s.NoError(it.Close())
	}
}

func (s *DBTestSuite) TestIteratorUpperBound() {
	for _, key := range []string{"a", "b", "c", "d"} {
		s.put(key, key)
	}
	for _, tailing := range []bool{false, true} {
		it := s.db.NewIterator(&options.ReadOptions{Tailing: tailing, UpperBound: []byte("c")})
		s.Equal([]string{"a=a", "b=b"}, s.scan(it), "tailing %v", tailing)
		s.False(it.Seek([]byte("c")))
		s.NoError(it.Err())
		s.NoError(it.Close())
	}
}

func (s *DBTestSuite) TestIteratorClosed() {
	it := s.db.NewIterator(&options.ReadOptions{Tailing: true})
	s.NoError(it.Close())
	s.NoError(it.Close())
	s.False(it.First())
	s.True(errors.Is(it.Err(), errors.ErrIteratorClosed))
}

func (s *DBTestSuite) TestClose() {
	it := s.db.NewIterator(&options.ReadOptions{Tailing: true})
	s.Require().NoError(s.db.Close())
	db := s.db
	s.db = nil

	s.True(errors.Is(db.Close(), errors.ErrDBClosed))
	s.True(errors.Is(db.Put([]byte("a"), []byte("1"), &options.DefaultWriteOptions), errors.ErrDBClosed))
	s.True(errors.Is(db.Flush(), errors.ErrDBClosed))
	_, err := db.Get([]byte("a"), &options.DefaultReadOptions)
	s.True(errors.Is(err, errors.ErrDBClosed))

	s.False(it.First())
	s.True(errors.Is(it.Err(), errors.ErrDBClosed))
	s.NoError(it.Close())
}

func (s *DBTestSuite) TestReopenDiscardsTables() {
	s.put("a", "1")
	s.Require().NoError(s.db.Flush())
	s.Require().NoError(s.db.Close())
	s.db = nil

	s.open()
	_, err := s.get("a")
	s.True(errors.Is(err, errors.ErrNotFound))
	s.Equal(0, s.db.LevelFiles()[0])
}
