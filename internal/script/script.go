// Package script implements the flat-form text codec.
//
// Layout:
//
//	# %% nb-hash=<32-hex-digest>
//	<chunk-1>
//	# %%
//	<chunk-2>
//
// Narrative chunks are wrapped in triple double-quotes. Neither the chunk
// separator nor the narrative delimiter is escaped when it occurs inside
// chunk content; such content corrupts the split. This is a known limitation
// of the format, kept for compatibility with existing files.
package script

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

const (
	hashPrefix     = "# %% nb-hash="
	separator      = "# %%\n"
	narrativeDelim = `"""`
)

// Decode splits flat text into the embedded fingerprint and trimmed raw
// blocks. The fingerprint is empty when the first line does not carry the
// hash header (legacy or hand-authored files). Blocks are untyped at this
// stage; Chunks assigns kinds.
func Decode(data []byte) (ref string, blocks []string, err error) {
	if !utf8.Valid(data) {
		return "", nil, fmt.Errorf("script: %w: not valid UTF-8", apperr.ErrMalformedScript)
	}
	text := string(data)
	if strings.HasPrefix(text, hashPrefix) {
		line, rest, _ := strings.Cut(text, "\n")
		ref = strings.TrimSpace(strings.TrimPrefix(line, hashPrefix))
		text = rest
	}
	parts := strings.Split(text, separator)
	blocks = make([]string, len(parts))
	for i, p := range parts {
		blocks[i] = strings.TrimSpace(p)
	}
	return ref, blocks, nil
}

// Chunks assigns kinds to raw blocks: a block wrapped in triple double-quotes
// at both ends is narrative (wrappers stripped, inner text trimmed);
// everything else is executable. Empty blocks stay as empty executable
// chunks rather than being dropped.
func Chunks(blocks []string) []models.Chunk {
	out := make([]models.Chunk, len(blocks))
	for i, b := range blocks {
		if inner, ok := stripNarrative(b); ok {
			out[i] = models.Chunk{Kind: models.Narrative, Content: inner}
		} else {
			out[i] = models.Chunk{Kind: models.Executable, Content: b}
		}
	}
	return out
}

// Encode renders chunks into flat text beginning with the fingerprint header.
// Narrative chunks are re-wrapped in triple double-quotes; outputs are never
// part of the flat form.
func Encode(ref string, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString(hashPrefix)
	b.WriteString(ref)
	b.WriteByte('\n')

	rendered := make([]string, len(chunks))
	for i, c := range chunks {
		if c.Kind == models.Narrative {
			rendered[i] = narrativeDelim + "\n" + c.Content + "\n" + narrativeDelim
		} else {
			rendered[i] = c.Content
		}
	}
	b.WriteString(strings.Join(rendered, "\n"+separator))
	return b.String()
}

// stripNarrative removes the leading and trailing triple-quote markers.
// Blocks shorter than two markers (a bare `"""` or `"""""`) decode to empty
// narrative content.
func stripNarrative(b string) (string, bool) {
	if !strings.HasPrefix(b, narrativeDelim) || !strings.HasSuffix(b, narrativeDelim) {
		return "", false
	}
	if len(b) < 2*len(narrativeDelim) {
		return "", true
	}
	inner := b[len(narrativeDelim) : len(b)-len(narrativeDelim)]
	return strings.TrimSpace(inner), true
}
