package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a compression algorithm for the archive payload.
type Codec string

const (
	// CodecZstd is the default: best ratio of the three.
	CodecZstd Codec = "zstd"
	// CodecLZ4 is the fastest to pack and unpack.
	CodecLZ4 Codec = "lz4"
	// CodecGzip is readable by the most external tools.
	CodecGzip Codec = "gzip"
)

// maxManifestSize bounds how far a payload may expand when decoded.
const maxManifestSize = 256 << 20

// ParseCodec resolves a codec name. An empty name selects CodecZstd.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "":
		return CodecZstd, nil
	case CodecZstd, CodecLZ4, CodecGzip:
		return Codec(name), nil
	default:
		return "", fmt.Errorf("unknown archive codec %q", name)
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxManifestSize))
}

func (c Codec) compress(data []byte) ([]byte, error) {
	switch c {
	case CodecZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil

	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CodecGzip:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unknown archive codec %q", string(c))
	}
}

func (c Codec) decompress(data []byte) ([]byte, error) {
	var r io.Reader
	switch c {
	case CodecZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		return dec.DecodeAll(data, nil)

	case CodecLZ4:
		r = lz4.NewReader(bytes.NewReader(data))

	case CodecGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr

	default:
		return nil, fmt.Errorf("unknown archive codec %q", string(c))
	}

	out, err := io.ReadAll(io.LimitReader(r, maxManifestSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxManifestSize {
		return nil, fmt.Errorf("archive payload exceeds %d bytes", maxManifestSize)
	}
	return out, nil
}
