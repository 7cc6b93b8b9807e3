// Package fingerprint computes the content digest used to detect drift
// between the structured and flat forms of a document.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// Compute returns the hex-encoded MD5 digest of the JSON-encoded sequence of
// chunk contents. The digest is content-addressed: two documents with
// identical chunk-content sequences fingerprint the same regardless of
// formatting or metadata.
//
// Chunk kind is not part of the digest input, so a narrative chunk turning
// executable (or vice versa) with identical text goes undetected as a change.
// Existing flat-file headers depend on this, so it stays.
//
// MD5 fits the 32-hex-char header slot and only needs to catch accidental
// edits, not tampering.
func Compute(contents []string) string {
	if contents == nil {
		contents = []string{}
	}
	data, _ := json.Marshal(contents)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
