package table

import (
	"bytes"
	"encoding/binary"

	"sqlyte/internal/storage"
)

// Row is the fixed schema this engine stores: a numeric primary key, a
// short username, and an email, each fixed-width and NUL-terminated on
// the wire.
type Row struct {
	ID       uint32
	Username string
	Email    string
}

// MaxUsernameLen and MaxEmailLen are the inclusive user-visible capacities
// spec.md §3 mandates: one byte of each field's capacity is reserved for
// the NUL terminator.
const (
	MaxUsernameLen = storage.RowUsernameSize - 1
	MaxEmailLen    = storage.RowEmailSize - 1
)

// SerializeRow packs row into a storage.RowSize-byte buffer.
func SerializeRow(row Row) []byte {
	buf := make([]byte, storage.RowSize)
	binary.LittleEndian.PutUint32(buf[0:storage.RowIDSize], row.ID)
	putFixedString(buf[storage.RowIDSize:storage.RowIDSize+storage.RowUsernameSize], row.Username)
	putFixedString(buf[storage.RowIDSize+storage.RowUsernameSize:], row.Email)
	return buf
}

// DeserializeRow unpacks a storage.RowSize-byte buffer into a Row.
func DeserializeRow(buf []byte) Row {
	return Row{
		ID:       binary.LittleEndian.Uint32(buf[0:storage.RowIDSize]),
		Username: getFixedString(buf[storage.RowIDSize : storage.RowIDSize+storage.RowUsernameSize]),
		Email:    getFixedString(buf[storage.RowIDSize+storage.RowUsernameSize:]),
	}
}

// putFixedString writes s into dst NUL-terminated, zero-padding the rest.
// Callers are responsible for having validated len(s) < len(dst).
func putFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

// getFixedString reads a NUL-terminated string out of a fixed-width field.
func getFixedString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}
