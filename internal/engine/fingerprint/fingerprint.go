// Package fingerprint derives the dedup key that identifies "the same logical event".
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"notification-engine/internal/models"
)

// Fingerprint is a hex-encoded SHA-256 digest.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short is a log-friendly prefix.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Valid reports whether s looks like a fingerprint produced by Build.
func Valid(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Builder buckets occurrence times into fixed windows aligned on the Unix epoch.
type Builder struct {
	window time.Duration
}

func NewBuilder(window time.Duration) (*Builder, error) {
	if window <= 0 {
		return nil, fmt.Errorf("fingerprint: window must be positive, got %s", window)
	}
	return &Builder{window: window}, nil
}

func (b *Builder) Window() time.Duration { return b.window }

// Bucket returns the start of the window occurredAt falls in.
func (b *Builder) Bucket(occurredAt time.Time) time.Time {
	ns, w := occurredAt.UnixNano(), int64(b.window)
	start := ns - ns%w
	if ns%w < 0 {
		start -= w
	}
	return time.Unix(0, start).UTC()
}

// Build hashes the identity fields and the window bucket. Each field is length-prefixed, so
// ("ab","c") and ("a","bc") never collide.
func (b *Builder) Build(jobID, recipientID string, eventType models.EventType, occurredAt time.Time) Fingerprint {
	h := sha256.New()
	writeField(h, []byte(jobID))
	writeField(h, []byte(recipientID))
	writeField(h, []byte(eventType))

	var bucket [8]byte
	binary.BigEndian.PutUint64(bucket[:], uint64(b.Bucket(occurredAt).UnixNano()))
	writeField(h, bucket[:])

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func writeField(w io.Writer, field []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(field)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(field)
}
