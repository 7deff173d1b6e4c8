package sender

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// newSessionID returns a 16-byte correlation ID for one Session: an 8-byte
// Unix-nanosecond timestamp prefix, so IDs sort by creation order in logs,
// followed by 8 bytes of random entropy to disambiguate same-tick sessions.
// It is hex-encoded since that's the form every consumer (zap fields, trace
// attributes, the stats hub's JSON) wants.
func newSessionID() (string, error) {
	var id [16]byte
	binary.BigEndian.PutUint64(id[:8], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(id[8:]); err != nil {
		return "", fmt.Errorf("sender: generate session id: %w", err)
	}
	return hex.EncodeToString(id[:]), nil
}
