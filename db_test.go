package lsmtail_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/kezhuw/lsmtail"
)

type DBTestSuite struct {
	suite.Suite

	dir string
	db  *lsmtail.DB
}

func TestDB(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func (s *DBTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	db, err := lsmtail.Open(s.dir, &lsmtail.Options{Logger: lsmtail.DiscardLogger})
	s.Require().NoError(err, "fail to create db %s", s.dir)
	s.db = db
}

func (s *DBTestSuite) TearDownTest() {
	s.db.Close()
}

func (s *DBTestSuite) TestGetPutDelete() {
	s.Require().NoError(s.db.Put([]byte("a"), []byte("1"), nil))
	value, err := s.db.Get([]byte("a"), nil)
	s.NoError(err)
	s.Equal("1", string(value))

	s.Require().NoError(s.db.Delete([]byte("a"), nil))
	_, err = s.db.Get([]byte("a"), nil)
	s.ErrorIs(err, lsmtail.ErrNotFound)
}

func (s *DBTestSuite) TestWriteBatch() {
	var batch lsmtail.Batch
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	s.Equal(3, batch.Len())
	s.Require().NoError(s.db.Write(&batch, nil))

	it := s.db.NewIterator(nil)
	defer it.Close()
	s.True(it.First())
	s.Equal("b", string(it.Key()))
	s.False(it.Next())

	batch.Clear()
	s.Equal(0, batch.Len())
	s.NoError(s.db.Write(&batch, nil))
}

func (s *DBTestSuite) TestIteratorMisuse() {
	it := s.db.NewIterator(&lsmtail.ReadOptions{Tailing: true})
	defer it.Close()

	s.Equal(lsmtail.StatusNotInitialized, it.Status())
	s.False(it.Valid())
	s.Panics(func() { it.Key() })
	s.Panics(func() { it.Value() })
	s.Panics(func() { it.Next() })

	value, err := it.Property(lsmtail.PropertySuperVersionNumber)
	s.NoError(err)
	s.Equal("0", value)
	_, err = it.Property("lsmtail.iterator.unknown")
	s.ErrorIs(err, lsmtail.ErrNotSupported)

	s.Require().NoError(s.db.Put([]byte("a"), []byte("1"), nil))
	s.True(it.First())
	s.False(it.Last())
	s.Equal(lsmtail.StatusNotSupported, it.Status())
	s.False(it.Valid())
	s.Panics(func() { it.Key() })

	s.True(it.Seek([]byte("a")))
	s.Equal(lsmtail.StatusOK, it.Status())
	s.False(it.Prev())
	s.Equal(lsmtail.StatusNotSupported, it.Status())
	s.ErrorIs(it.Err(), lsmtail.ErrNotSupported)
}

func (s *DBTestSuite) TestNonTailingIteratorIsFixed() {
	s.Require().NoError(s.db.Put([]byte("a"), []byte("1"), nil))
	it := s.db.NewIterator(nil)
	defer it.Close()
	s.Require().NoError(s.db.Put([]byte("b"), []byte("2"), nil))

	s.True(it.First())
	s.Equal("a", string(it.Key()))
	s.False(it.Next())
}

func (s *DBTestSuite) TestConcurrentWritersWithTailingReader() {
	const writers, n = 4, 500
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < n; i++ {
				key := []byte(fmt.Sprintf("%d-%04d", w, i))
				if err := s.db.Put(key, key, nil); err != nil {
					return err
				}
			}
			return nil
		})
	}

	it := s.db.NewIterator(&lsmtail.ReadOptions{Tailing: true})
	defer it.Close()
	g.Go(func() error {
		for {
			var last []byte
			count := 0
			for ok := it.First(); ok; ok = it.Next() {
				if last != nil && bytes.Compare(last, it.Key()) >= 0 {
					return fmt.Errorf("key %q after %q", it.Key(), last)
				}
				last = append(last[:0], it.Key()...)
				count++
			}
			if err := it.Err(); err != nil {
				return err
			}
			if count == writers*n {
				return nil
			}
		}
	})
	s.Require().NoError(g.Wait())
}

func (s *DBTestSuite) TestClosed() {
	it := s.db.NewIterator(&lsmtail.ReadOptions{Tailing: true})
	s.Require().NoError(s.db.Close())
	s.ErrorIs(s.db.Close(), lsmtail.ErrDBClosed)
	s.ErrorIs(s.db.Put([]byte("a"), []byte("1"), nil), lsmtail.ErrDBClosed)
	s.False(it.First())
	s.ErrorIs(it.Err(), lsmtail.ErrDBClosed)
	s.Equal(lsmtail.StatusIOError, it.Status())
	s.NoError(it.Close())
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	db, err := lsmtail.Open(t.TempDir(), &lsmtail.Options{Logger: lsmtail.DiscardLogger, Registerer: reg})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("1"), nil))
	it := db.NewIterator(&lsmtail.ReadOptions{Tailing: true})
	defer it.Close()
	require.True(t, it.First())

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP lsmtail_tailing_iterator_rebuilds_total Number of times tailing iterators built all slots from scratch.
# TYPE lsmtail_tailing_iterator_rebuilds_total counter
lsmtail_tailing_iterator_rebuilds_total 1
`), "lsmtail_tailing_iterator_rebuilds_total"))
}

func TestOpenLogsToFile(t *testing.T) {
	dir := t.TempDir()
	db, err := lsmtail.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("a"), []byte("1"), nil))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Close())

	db, err = lsmtail.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.FileExists(t, dir+"/LOG")
	require.FileExists(t, dir+"/LOG.old")
}

func TestCorruptTableStatus(t *testing.T) {
	dir := t.TempDir()
	db, err := lsmtail.Open(dir, &lsmtail.Options{
		Logger:                lsmtail.DiscardLogger,
		Compression:           lsmtail.NoCompression,
		DisableAutoCompaction: true,
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("1"), nil))
	require.NoError(t, db.Put([]byte("b"), []byte("2"), nil))
	require.NoError(t, db.Flush())

	names, err := filepath.Glob(filepath.Join(dir, "*.ldb"))
	require.NoError(t, err)
	require.Len(t, names, 1)
	f, err := os.OpenFile(names[0], os.O_RDWR, 0)
	require.NoError(t, err)
	// The first entry of the first data block must not share key bytes.
	_, err = f.WriteAt([]byte{0xff}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	it := db.NewIterator(&lsmtail.ReadOptions{Tailing: true})
	defer it.Close()
	require.False(t, it.First())
	require.Equal(t, lsmtail.StatusCorruption, it.Status(), "%v", it.Err())
	require.True(t, lsmtail.IsCorrupt(it.Err()))
}
