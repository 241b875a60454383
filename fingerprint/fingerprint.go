// Package fingerprint derives deterministic cache keys from input frames.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/Tutortoise/drowsiness-service/models"
)

// Marker ends a data-URI header. Everything up to and including it is
// dropped before hashing or decoding.
const Marker = "base64,"

// Fingerprint is a sha256 digest of a frame's content.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex characters, for logs.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// StripHeader removes a data-URI header if present.
func StripHeader(s string) string {
	if i := strings.Index(s, Marker); i >= 0 {
		return s[i+len(Marker):]
	}
	return s
}

// Of hashes the payload. Encoded payloads hash identically with or
// without their data-URI header.
func Of(p models.Payload) Fingerprint {
	h := sha256.New()
	switch v := p.(type) {
	case models.Encoded:
		h.Write([]byte{'e'})
		h.Write([]byte(StripHeader(v.Data)))
	case models.Pixels:
		var hdr [17]byte
		hdr[0] = 'p'
		binary.BigEndian.PutUint32(hdr[1:], uint32(v.Width))
		binary.BigEndian.PutUint32(hdr[5:], uint32(v.Height))
		binary.BigEndian.PutUint64(hdr[9:], uint64(v.Order))
		h.Write(hdr[:])
		h.Write(v.Pix)
	}

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
