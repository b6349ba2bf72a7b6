package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// ContentHash digests a revision's stem and ordered answers. Fields are
// length-prefixed so that moving bytes between fields cannot collide. Equal
// hash on save means the edit does not need a new revision.
func ContentHash(stem string, answers []Answer) string {
	h := sha256.New()
	writeField := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeField(stem)
	for _, a := range answers {
		writeField(a.Text)
		if a.IsCorrect {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		writeField(a.Feedback)
	}
	return hex.EncodeToString(h.Sum(nil))
}
