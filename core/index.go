package core

// Entry is the in-memory index record for a single live key.
//
// It points straight at the JSON payload of the key's most recent put,
// so a read needs no backward scan and no second header read. The
// checksum is carried along so the payload bytes can be verified on
// every read.
//
// The index is rebuilt on startup by replaying the log, and again after
// compaction.
type Entry struct {
	PayloadOff int64  // absolute offset of the payload's first byte
	PayloadLen int    // payload byte count, excluding the newline
	Checksum   uint32 // CRC-32 of the payload bytes
	Expiry     int64  // absolute Unix seconds; 0 = no expiry
}

// Index maps each live key to its latest on-disk entry. Tombstones are
// never indexed; they only remove entries.
type Index map[string]Entry

// Keys returns an unordered snapshot of the indexed keys.
func (ix Index) Keys() []string {
	keys := make([]string, 0, len(ix))
	for k := range ix {
		keys = append(keys, k)
	}
	return keys
}
