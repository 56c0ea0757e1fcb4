// Package runid generates short, human-friendly correlation ids for a
// single ApplyPatches invocation, so every log line for a run can be
// grepped together. The general idea — a few bytes of randomness run
// through Crockford base32 — is grounded on the teacher repo's
// newSessionID (cmd/sketch/main.go), though the bit layout here differs:
// one 64-bit draw split into two halves rather than two independent draws
// concatenated and padded.
package runid

import (
	"math/rand/v2"

	"github.com/richardlehane/crock32"
)

// tag marks a generated id as a patchkit run id at a glance in mixed log
// output, distinguishing it from any other id format sharing the same log
// stream.
const tag = "pk"

// New generates a new run id, formatted as "pk-XXXXXXXX-XXXXXXXX": a
// single 64-bit random draw, split into high and low 32-bit halves, each
// independently Crockford base32 encoded and left-padded to 8 characters.
func New() string {
	r := rand.Uint64()
	hi, lo := uint32(r>>32), uint32(r)
	return tag + "-" + pad8(crock32.Encode(uint64(hi))) + "-" + pad8(crock32.Encode(uint64(lo)))
}

func pad8(s string) string {
	for len(s) < 8 {
		s = "0" + s
	}
	return s
}
