package cache

import "github.com/hrygo/tiercache/store"

// estimateSize returns the heuristic byte cost of a stored payload. It is an
// approximation used for tier budgeting, not exact memory accounting: text is
// charged at two bytes per byte, binary at raw length, structured at the
// length of its JSON serialization.
func estimateSize(kind store.ValueKind, blob []byte) int64 {
	switch kind {
	case store.ValueKindText:
		return int64(len(blob)) * 2
	default:
		return int64(len(blob))
	}
}
