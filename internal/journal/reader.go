package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"main/internal/schema"
)

const defaultMaxPayloadSize = 16 * 1024 * 1024

// ErrPayloadSizeExceeded reports a record payload larger than the reader
// allows.
var ErrPayloadSizeExceeded = errors.New("journal payload size exceeded")

// ReaderConfig controls journal segment reading.
type ReaderConfig struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes records from a single journal segment.
type Reader struct {
	cfg ReaderConfig
	src *bufio.Reader

	headerBuf   [recordHeaderSize]byte
	checksumBuf [recordChecksumSize]byte
	payloadBuf  []byte
}

// NewReader wraps an io.Reader producing journal records.
func NewReader(src io.Reader, cfg ReaderConfig) *Reader {
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = defaultMaxPayloadSize
	}
	return &Reader{
		cfg: cfg,
		src: bufio.NewReaderSize(src, 256*1024),
	}
}

// OpenSegment opens a journal segment file for reading. The caller closes
// the returned file.
func OpenSegment(path string, cfg ReaderConfig) (*Reader, *os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return NewReader(file, cfg), file, nil
}

// Next reads the next record. The returned payload slice is only valid
// until the following call. io.EOF marks a clean end of segment.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	if _, err := io.ReadFull(r.src, r.headerBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return schema.EventHeader{}, nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return schema.EventHeader{}, nil, fmt.Errorf("truncated record header: %w", io.ErrUnexpectedEOF)
		}
		return schema.EventHeader{}, nil, err
	}

	header, payloadLen, err := decodeRecordHeader(r.headerBuf[:])
	if err != nil {
		return schema.EventHeader{}, nil, err
	}
	if int(payloadLen) > r.cfg.MaxPayloadSize {
		return schema.EventHeader{}, nil, fmt.Errorf("%w: %d > %d", ErrPayloadSizeExceeded, payloadLen, r.cfg.MaxPayloadSize)
	}

	if cap(r.payloadBuf) < int(payloadLen) {
		r.payloadBuf = make([]byte, payloadLen)
	}
	payload := r.payloadBuf[:payloadLen]
	if payloadLen > 0 {
		if _, err := io.ReadFull(r.src, payload); err != nil {
			return schema.EventHeader{}, nil, fmt.Errorf("truncated record payload: %w", err)
		}
	}
	if _, err := io.ReadFull(r.src, r.checksumBuf[:]); err != nil {
		return schema.EventHeader{}, nil, fmt.Errorf("truncated record checksum: %w", err)
	}
	if !r.cfg.DisableChecksum {
		want := binary.LittleEndian.Uint32(r.checksumBuf[:])
		if got := checksum(r.headerBuf[:], payload); got != want {
			return schema.EventHeader{}, nil, fmt.Errorf("%w: seq: %d", ErrChecksumMismatch, header.Seq)
		}
	}
	return header, payload, nil
}
