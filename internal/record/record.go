package record

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Operation names stored in the "op" field of every log record.
const (
	OpPut    = "put"
	OpDelete = "delete"
)

// Framing and integrity failures surfaced by the codec. Recovery treats
// any of them as the logical end of the log; a read through the index
// treats them as corruption.
var (
	ErrMalformedHeader  = errors.New("malformed record header")
	ErrMalformedFrame   = errors.New("malformed record frame")
	ErrChecksumMismatch = errors.New("record checksum mismatch")
	ErrCorruptRecord    = errors.New("corrupt record payload")
)

// Record is the JSON payload of a single log entry.
//
// A put record carries all four fields ("expiry" is 0 when the key never
// expires); a tombstone carries only "op" and "key". Field order is fixed
// by the struct declaration, so the same record always encodes to the
// same bytes.
type Record struct {
	Op     string  `json:"op"`
	Key    string  `json:"key"`
	Value  *string `json:"value,omitempty"`
	Expiry *int64  `json:"expiry,omitempty"`
}

// NewPut builds a put record. expiry is an absolute Unix-seconds
// timestamp, 0 meaning no expiry.
func NewPut(key, value string, expiry int64) *Record {
	return &Record{Op: OpPut, Key: key, Value: &value, Expiry: &expiry}
}

// NewTombstone builds a delete record for key.
func NewTombstone(key string) *Record {
	return &Record{Op: OpDelete, Key: key}
}

// IsPut reports whether the record is a put.
func (r *Record) IsPut() bool { return r.Op == OpPut }

// ValueString returns the stored value ("" for tombstones).
func (r *Record) ValueString() string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}

// ExpiryUnix returns the stored expiry (0 for tombstones).
func (r *Record) ExpiryUnix() int64 {
	if r.Expiry == nil {
		return 0
	}
	return *r.Expiry
}

// Framed is a fully encoded record ready to be appended to the log.
type Framed struct {
	Data       []byte // header line + payload line, each '\n'-terminated
	HeaderLen  int    // byte length of the header line including '\n'
	PayloadLen int    // byte length of the JSON payload excluding '\n'
	Checksum   uint32 // CRC-32 of the payload bytes
}

// Encode serializes rec into its two-line on-disk frame:
//
//	<payload_length> <checksum>\n
//	<json_payload>\n
//
// Both header fields are decimal ASCII separated by a single space.
func Encode(rec *Record) (*Framed, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode record payload")
	}

	sum := Checksum(payload)
	header := strconv.Itoa(len(payload)) + " " + strconv.FormatUint(uint64(sum), 10) + "\n"

	buf := &bytes.Buffer{}
	buf.Grow(len(header) + len(payload) + 1)
	buf.WriteString(header)
	buf.Write(payload)
	buf.WriteByte('\n')

	return &Framed{
		Data:       buf.Bytes(),
		HeaderLen:  len(header),
		PayloadLen: len(payload),
		Checksum:   sum,
	}, nil
}

// ParseHeader parses a header line (without its trailing newline) into
// the payload length and checksum. Anything other than two ASCII decimal
// fields separated by one space is ErrMalformedHeader.
func ParseHeader(line []byte) (length int, checksum uint32, err error) {
	sep := bytes.IndexByte(line, ' ')
	if sep <= 0 || sep == len(line)-1 {
		return 0, 0, ErrMalformedHeader
	}

	lengthField := line[:sep]
	checksumField := line[sep+1:]
	if !allDigits(lengthField) || !allDigits(checksumField) {
		return 0, 0, ErrMalformedHeader
	}

	n, err := strconv.Atoi(string(lengthField))
	if err != nil {
		return 0, 0, ErrMalformedHeader
	}
	sum, err := strconv.ParseUint(string(checksumField), 10, 32)
	if err != nil {
		return 0, 0, ErrMalformedHeader
	}

	return n, uint32(sum), nil
}

// DecodePayload verifies the checksum of payload and unmarshals it into
// a Record. Checksum disagreement is ErrChecksumMismatch; a JSON parse
// failure of checksum-valid bytes is ErrCorruptRecord.
func DecodePayload(payload []byte, checksum uint32) (*Record, error) {
	if !Validate(payload, checksum) {
		return nil, ErrChecksumMismatch
	}

	rec := &Record{}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, ErrCorruptRecord
	}

	return rec, nil
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}
