// Package compress encodes and decodes table blocks.
package compress

import (
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/kezhuw/lsmtail/internal/errors"
)

// Type is stored in the trailer of every block.
type Type int

const (
	NoCompression     Type = 0
	SnappyCompression Type = 1
	ZstdCompression   Type = 2
)

var (
	ErrNoCompression          = errors.New("lsmtail: no compression")
	ErrUnsupportedCompression = errors.New("lsmtail: unsupported compression")
)

// Encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
var zstdCodec struct {
	once    sync.Once
	err     error
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func loadZstd() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdCodec.once.Do(func() {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			zstdCodec.err = errors.Wrap(err, "create zstd encoder")
			return
		}
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			encoder.Close()
			zstdCodec.err = errors.Wrap(err, "create zstd decoder")
			return
		}
		zstdCodec.encoder, zstdCodec.decoder = encoder, decoder
	})
	return zstdCodec.encoder, zstdCodec.decoder, zstdCodec.err
}

// Decode decompresses src into dst, which may be reused.
func Decode(typ Type, dst, src []byte) ([]byte, error) {
	switch typ {
	case NoCompression:
		return nil, ErrNoCompression
	case SnappyCompression:
		return snappy.Decode(dst, src)
	case ZstdCompression:
		_, decoder, err := loadZstd()
		if err != nil {
			return nil, err
		}
		return decoder.DecodeAll(src, dst[:0])
	}
	return nil, ErrUnsupportedCompression
}

// Encode compresses src into dst, which may be reused.
func Encode(typ Type, dst, src []byte) ([]byte, error) {
	switch typ {
	case NoCompression:
		return nil, ErrNoCompression
	case SnappyCompression:
		return snappy.Encode(dst, src), nil
	case ZstdCompression:
		encoder, _, err := loadZstd()
		if err != nil {
			return nil, err
		}
		return encoder.EncodeAll(src, dst[:0]), nil
	}
	return nil, ErrUnsupportedCompression
}
