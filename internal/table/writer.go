package table

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/kezhuw/lsmtail/internal/compress"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table/block"
)

// Writer writes a table from internal keys added in increasing order.
type Writer struct {
	w       io.Writer
	options *options.Options

	err        error
	offset     uint64
	numEntries int
	smallest   []byte
	lastKey    []byte
	indexKey   []byte

	dataBlock    block.Writer
	indexBlock   block.Writer
	pending      bool
	pendingBlock block.Handle

	// User keys and prefixes for the table wide filters, flattened.
	filterKeys   keyList
	prefixKeys   keyList
	lastUserKey  []byte
	lastPrefix   []byte
	compressed   []byte
	filterBuffer bytes.Buffer
}

type keyList struct {
	data    []byte
	offsets []int
}

func (l *keyList) add(key []byte) {
	l.offsets = append(l.offsets, len(l.data))
	l.data = append(l.data, key...)
}

func (l *keyList) keys() [][]byte {
	keys := make([][]byte, len(l.offsets))
	for i, start := range l.offsets {
		limit := len(l.data)
		if i+1 < len(l.offsets) {
			limit = l.offsets[i+1]
		}
		keys[i] = l.data[start:limit]
	}
	return keys
}

// NewWriter returns a writer producing a table on w.
func NewWriter(w io.Writer, opts *options.Options) *Writer {
	tw := &Writer{w: w, options: opts}
	tw.dataBlock.RestartInterval = opts.BlockRestartInterval
	tw.dataBlock.Reset()
	tw.indexBlock.RestartInterval = 1
	tw.indexBlock.Reset()
	return tw
}

// Add appends an entry. ikey must be greater than every key added before.
func (w *Writer) Add(ikey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	w.flushPendingIndex(ikey)
	if w.numEntries == 0 {
		w.smallest = append(w.smallest[:0], ikey...)
	}
	w.numEntries++
	w.lastKey = append(w.lastKey[:0], ikey...)
	w.addFilterKeys(keys.InternalKey(ikey).UserKey())
	w.dataBlock.Add(ikey, value)
	if w.dataBlock.ApproximateSize() >= w.options.BlockSize {
		w.flushDataBlock()
	}
	return w.err
}

func (w *Writer) addFilterKeys(ukey []byte) {
	ucmp := w.options.Comparator.UserKeyComparator
	if w.options.Filter != nil && (len(w.filterKeys.offsets) == 0 || ucmp.Compare(ukey, w.lastUserKey) != 0) {
		w.filterKeys.add(ukey)
		w.lastUserKey = append(w.lastUserKey[:0], ukey...)
	}
	if ex := w.options.PrefixExtractor; ex != nil && w.options.Filter != nil && ex.InDomain(ukey) {
		prefix := ex.Prefix(ukey)
		if len(w.prefixKeys.offsets) == 0 || ucmp.Compare(prefix, w.lastPrefix) != 0 {
			w.prefixKeys.add(prefix)
			w.lastPrefix = append(w.lastPrefix[:0], prefix...)
		}
	}
}

// Empty reports whether nothing was added.
func (w *Writer) Empty() bool {
	return w.numEntries == 0
}

// Entries returns the number of entries added.
func (w *Writer) Entries() int {
	return w.numEntries
}

// Smallest returns the first key added.
func (w *Writer) Smallest() []byte {
	return w.smallest
}

// Largest returns the last key added.
func (w *Writer) Largest() []byte {
	return w.lastKey
}

// FileSize returns the number of bytes written so far.
func (w *Writer) FileSize() uint64 {
	return w.offset
}

// ApproximateFileSize includes the data block under construction.
func (w *Writer) ApproximateFileSize() uint64 {
	return w.offset + uint64(w.dataBlock.ApproximateSize())
}

func (w *Writer) flushPendingIndex(limit []byte) {
	if !w.pending {
		return
	}
	w.indexKey = w.options.Comparator.AppendSuccessor(w.indexKey[:0], w.lastKey, limit)
	w.indexBlock.Add(w.indexKey, block.AppendHandle(nil, w.pendingBlock))
	w.pending = false
}

func (w *Writer) flushDataBlock() {
	if w.dataBlock.Empty() {
		return
	}
	w.pendingBlock, w.err = w.writeBlock(&w.dataBlock, w.options.Compression)
	w.pending = w.err == nil
}

// Finish writes meta blocks, index and footer. The writer is unusable
// afterwards.
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	w.flushDataBlock()
	if w.err != nil {
		return w.err
	}

	metaIndex := block.Writer{RestartInterval: 1}
	metaIndex.Reset()
	if f := w.options.Filter; f != nil {
		// Meta index keys must be added in order: "filter." < "prefix.".
		for _, meta := range []struct {
			name string
			keys *keyList
		}{
			{keyFilterPrefix + f.Name(), &w.filterKeys},
			{prefixFilterPrefix + f.Name(), &w.prefixKeys},
		} {
			if len(meta.keys.offsets) == 0 {
				continue
			}
			w.filterBuffer.Reset()
			f.Append(&w.filterBuffer, meta.keys.keys())
			h, err := w.writeRawBlock(w.filterBuffer.Bytes(), compress.NoCompression)
			if err != nil {
				w.err = err
				return err
			}
			metaIndex.Add([]byte(meta.name), block.AppendHandle(nil, h))
		}
	}
	var ft footer
	if ft.metaIndex, w.err = w.writeBlock(&metaIndex, compress.NoCompression); w.err != nil {
		return w.err
	}
	w.flushPendingIndex(nil)
	if ft.dataIndex, w.err = w.writeBlock(&w.indexBlock, compress.NoCompression); w.err != nil {
		return w.err
	}
	w.err = w.write(ft.append(nil))
	return w.err
}

func (w *Writer) writeBlock(b *block.Writer, compression compress.Type) (block.Handle, error) {
	contents := b.Finish()
	defer b.Reset()
	if compression != compress.NoCompression {
		compressed, err := compress.Encode(compression, w.compressed, contents)
		if err == nil && float64(len(contents)) >= float64(len(compressed))*w.options.BlockCompressionRatio {
			w.compressed = compressed[:0]
			return w.writeRawBlock(compressed, compression)
		}
		w.options.Logger.Debugf("table: store block uncompressed, compression %d: err=%v", compression, err)
	}
	return w.writeRawBlock(contents, compress.NoCompression)
}

func (w *Writer) writeRawBlock(contents []byte, compression compress.Type) (block.Handle, error) {
	h := block.Handle{Offset: w.offset, Length: uint64(len(contents))}
	var trailer [blockTrailerSize]byte
	trailer[0] = byte(compression)
	binary.LittleEndian.PutUint64(trailer[1:], checksum(contents, trailer[0]))
	if err := w.write(contents); err != nil {
		return h, err
	}
	return h, w.write(trailer[:])
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.offset += uint64(n)
	return err
}
