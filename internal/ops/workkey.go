package ops

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// WorkKeyInput is everything a generated fix depends on. It mirrors the
// generate.Request fields the prompt is built from.
type WorkKeyInput struct {
	ProjectID       string
	Entity          string // kind:id
	FieldGroup      string
	FixType         string
	LiveContent     string
	TemplateVersion string
	// Refresh forces a distinct key for an explicit regenerate.
	Refresh string
}

// WorkKey fingerprints a fix request. Identical requests for the same entity
// share one cached generation; another entity or project never reuses it.
// Fields are length-prefixed so no two inputs collide by concatenation.
func WorkKey(in WorkKeyInput) string {
	h := sha256.New()
	for _, part := range []string{"v2", in.ProjectID, in.Entity, in.FieldGroup, in.FixType, in.LiveContent, in.TemplateVersion, in.Refresh} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
