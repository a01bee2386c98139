package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lexsearch/core"
)

const (
	magicSize    = 4
	checksumSize = 8
	float32Size  = 4
)

// encoder appends mus-encoded fields to a buffer sized up front.
type encoder struct {
	bs []byte
	n  int
}

func newEncoder(size int) *encoder {
	return &encoder{bs: make([]byte, size)}
}

func (e *encoder) bytes(b []byte) {
	e.n += copy(e.bs[e.n:], b)
}

func (e *encoder) uint64(v uint64) {
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) string(v string) {
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) bool(v bool) {
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float32(v float32) {
	e.n += raw.Float32.Marshal(v, e.bs[e.n:])
}

// decoder reads mus-encoded fields. The first failure sticks; later reads
// return zero values so callers check err once per record.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func newDecoder(bs []byte) *decoder {
	return &decoder{bs: bs}
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) remaining() int {
	return len(d.bs) - d.n
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrTruncatedData, err))
		return 0
	}
	d.n += n
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrTruncatedData, err))
		return 0
	}
	d.n += n
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrTruncatedData, err))
		return ""
	}
	d.n += n
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrSerializationFailed, err))
		return false
	}
	d.n += n
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	if d.remaining() < float32Size {
		d.fail(ErrTruncatedData)
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrSerializationFailed, err))
		return 0
	}
	d.n += n
	return v
}

// count reads a collection length and rejects values that could not fit in
// the remaining input, each element taking at least minElem bytes.
func (d *decoder) count(minElem int) int {
	v := d.uint64()
	if d.err != nil {
		return 0
	}
	if v > uint64(d.remaining()/max(minElem, 1)) {
		d.fail(fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrTruncatedData, v, d.remaining()))
		return 0
	}
	return int(v)
}

// frame wraps payload with magic, version and a trailing checksum.
func frame(magic string, version uint64, payloadSize int, write func(*encoder)) []byte {
	size := magicSize + varint.Uint64.Size(version) + payloadSize + checksumSize
	e := newEncoder(size)
	e.bytes([]byte(magic))
	e.uint64(version)
	write(e)
	binary.LittleEndian.PutUint64(e.bs[e.n:], core.Fingerprint(e.bs[:e.n]))
	return e.bs
}

// unframe verifies magic, version and checksum and returns a decoder over
// the payload.
func unframe(data []byte, magic string, version uint64) (*decoder, error) {
	if len(data) < magicSize+1+checksumSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a snapshot", ErrCorruptData, len(data))
	}
	body := data[:len(data)-checksumSize]
	sum := binary.LittleEndian.Uint64(data[len(data)-checksumSize:])
	if string(body[:magicSize]) != magic {
		return nil, fmt.Errorf("%w: unexpected magic %q", ErrCorruptData, body[:magicSize])
	}
	if core.Fingerprint(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptData)
	}

	d := newDecoder(body)
	d.n = magicSize
	if v := d.uint64(); d.err != nil || v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptData, v)
	}
	return d, nil
}
