// Package table implements immutable sorted table files together with the
// caches of open tables and decoded blocks.
//
// A table is a sequence of blocks followed by a footer:
//
//	data block ... meta block ... meta index block, data index block, footer
//
// Every block is followed by a trailer holding its compression type and an
// xxhash checksum over contents and type. Meta blocks hold the key filter
// and the prefix filter, located through the meta index.
package table

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/kezhuw/lsmtail/internal/compress"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/table/block"
)

const (
	blockTrailerSize = 1 + 8
	footerLength     = 2*block.MaxHandleEncodedLength + 8
	magicNumber      = 0x6c736d7461696c21 // "lsmtail!"

	keyFilterPrefix    = "filter."
	prefixFilterPrefix = "prefix."
)

// ErrBadMagicNumber reports a file that does not end with a table footer.
var ErrBadMagicNumber = errors.New("lsmtail: corrupt table: bad magic number")

type footer struct {
	metaIndex block.Handle
	dataIndex block.Handle
}

func (f *footer) append(dst []byte) []byte {
	start := len(dst)
	dst = block.AppendHandle(dst, f.metaIndex)
	dst = block.AppendHandle(dst, f.dataIndex)
	for len(dst)-start < footerLength-8 {
		dst = append(dst, 0)
	}
	return binary.LittleEndian.AppendUint64(dst, magicNumber)
}

func (f *footer) decode(buf []byte) error {
	if binary.LittleEndian.Uint64(buf[footerLength-8:]) != magicNumber {
		return ErrBadMagicNumber
	}
	var n int
	if f.metaIndex, n = block.DecodeHandle(buf); n <= 0 {
		return ErrBadMagicNumber
	}
	if f.dataIndex, n = block.DecodeHandle(buf[n:]); n <= 0 {
		return ErrBadMagicNumber
	}
	return nil
}

func checksum(contents []byte, compression byte) uint64 {
	d := xxhash.New()
	d.Write(contents)
	d.Write([]byte{compression})
	return d.Sum64()
}

// readBlock reads and decompresses the block at h. Checksums of blocks
// are verified when verify is true.
func readBlock(r io.ReaderAt, fileNumber uint64, h block.Handle, verify bool) ([]byte, error) {
	buf := make([]byte, h.Length+blockTrailerSize)
	if n, err := r.ReadAt(buf, int64(h.Offset)); n < len(buf) {
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.NewCorruption(fileNumber, "block", int64(h.Offset), "truncated block")
		}
		return nil, errors.Wrapf(err, "read block at %d in table %06d", h.Offset, fileNumber)
	}
	contents, trailer := buf[:h.Length:h.Length], buf[h.Length:]
	if verify && checksum(contents, trailer[0]) != binary.LittleEndian.Uint64(trailer[1:]) {
		return nil, errors.NewCorruption(fileNumber, "block", int64(h.Offset), "checksum mismatch")
	}
	compression := compress.Type(trailer[0])
	if compression == compress.NoCompression {
		return contents, nil
	}
	decoded, err := compress.Decode(compression, nil, contents)
	if err != nil {
		return nil, errors.NewCorruption(fileNumber, "block", int64(h.Offset), err.Error())
	}
	return decoded, nil
}
