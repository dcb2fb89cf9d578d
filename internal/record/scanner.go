package record

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Entry is one decoded record together with the position of its payload
// within the log.
type Entry struct {
	Rec        *Record
	PayloadOff int64 // absolute offset of the first payload byte
	PayloadLen int
	Checksum   uint32
}

// Scanner walks a log stream record by record, tracking the offset just
// past the last fully valid record. A truncated or corrupted tail shows
// up as a framing error from Next; ValidOffset then gives the boundary
// the file should be truncated to.
type Scanner struct {
	r      *bufio.Reader
	offset int64
	valid  int64
}

// NewScanner returns a Scanner reading from r, which must be positioned
// at offset 0 of the log.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next reads and decodes the next record.
//
// It returns io.EOF at a clean end of log. A torn or corrupted record
// returns one of the codec sentinel errors; the scanner must not be
// advanced further after that.
func (s *Scanner) Next() (*Entry, error) {
	header, err := s.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			if len(header) == 0 {
				return nil, io.EOF
			}
			// Header bytes with no terminating newline: torn write.
			return nil, ErrMalformedHeader
		}
		return nil, errors.Wrap(err, "read record header")
	}

	length, checksum, err := ParseHeader(header[:len(header)-1])
	if err != nil {
		return nil, err
	}

	payloadOff := s.offset + int64(len(header))

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrMalformedFrame
		}
		return nil, errors.Wrap(err, "read record payload")
	}

	nl, err := s.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return nil, ErrMalformedFrame
		}
		return nil, errors.Wrap(err, "read payload terminator")
	}
	if nl != '\n' {
		return nil, ErrMalformedFrame
	}

	rec, err := DecodePayload(payload, checksum)
	if err != nil {
		return nil, err
	}

	s.offset = payloadOff + int64(length) + 1
	s.valid = s.offset

	return &Entry{
		Rec:        rec,
		PayloadOff: payloadOff,
		PayloadLen: length,
		Checksum:   checksum,
	}, nil
}

// ValidOffset returns the offset just past the last record Next decoded
// successfully.
func (s *Scanner) ValidOffset() int64 {
	return s.valid
}
