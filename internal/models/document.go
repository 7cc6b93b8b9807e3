// Package models defines the domain types for nbsync.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ChunkKind distinguishes narrative (prose) chunks from executable (code) chunks.
type ChunkKind string

// Chunk kinds.
const (
	Narrative  ChunkKind = "narrative"
	Executable ChunkKind = "executable"
)

// Chunk is one unit of document content.
//
// Metadata and Outputs are carried opaquely between reads and writes of the
// structured form; the core never interprets them. Chunks built from the flat
// form have neither.
type Chunk struct {
	Kind           ChunkKind       `json:"kind"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Outputs        json.RawMessage `json:"outputs,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
}

// Document is an ordered sequence of chunks plus the stable name shared by
// both on-disk forms. It is constructed transiently per reconciliation pass
// and never persisted as an object.
type Document struct {
	Name   string
	Chunks []Chunk
	// Metadata is the structured form's document-level metadata block
	// (kernelspec, language_info, ...), preserved verbatim.
	Metadata json.RawMessage
}

// Contents returns the ordered chunk contents, which is the projection
// fingerprints are computed over.
func (d *Document) Contents() []string {
	out := make([]string, len(d.Chunks))
	for i, c := range d.Chunks {
		out[i] = c.Content
	}
	return out
}

// ExecutableCount returns the number of executable chunks.
func (d *Document) ExecutableCount() int {
	n := 0
	for _, c := range d.Chunks {
		if c.Kind == Executable {
			n++
		}
	}
	return n
}

// Title returns a display title: the first non-empty line of the first
// narrative chunk, or the document name when there is none.
func (d *Document) Title() string {
	for _, c := range d.Chunks {
		if c.Kind != Narrative {
			continue
		}
		for _, line := range strings.Split(c.Content, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(line, "# "))
			if line != "" {
				return line
			}
		}
		break
	}
	return d.Name
}

// DocumentMetadata is a lightweight representation returned by list
// operations: which forms of a document exist in the workspace.
type DocumentMetadata struct {
	Name        string    `json:"name"`
	HasNotebook bool      `json:"has_notebook"`
	HasScript   bool      `json:"has_script"`
	UpdatedAt   time.Time `json:"updated_at"`
}
