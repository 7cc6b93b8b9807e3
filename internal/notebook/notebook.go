// Package notebook implements the structured-form codec.
//
// Only the ordered (kind, content) projection of a notebook matters to
// reconciliation; cell metadata, captured outputs, and the document-level
// metadata block are carried opaquely and written back untouched.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

const (
	nbFormat      = 4
	nbFormatMinor = 4
)

// Defaults describes the kernel metadata stamped onto documents that
// originate from the flat form, which carries none.
type Defaults struct {
	KernelName      string
	DisplayName     string
	Language        string
	LanguageVersion string
}

// sourceText accepts the two encodings nbformat allows for cell source:
// a single string or an array of line strings.
type sourceText string

func (s *sourceText) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var lines []string
		if err := json.Unmarshal(data, &lines); err != nil {
			return err
		}
		*s = sourceText(strings.Join(lines, ""))
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = sourceText(str)
	return nil
}

type cellIn struct {
	CellType       string          `json:"cell_type"`
	Metadata       json.RawMessage `json:"metadata"`
	Source         sourceText      `json:"source"`
	Outputs        json.RawMessage `json:"outputs"`
	ExecutionCount *int            `json:"execution_count"`
}

type notebookIn struct {
	Cells    []cellIn        `json:"cells"`
	Metadata json.RawMessage `json:"metadata"`
}

// Decode parses structured-form bytes into a Document. Markdown cells become
// narrative chunks; every other cell type is treated as executable. Cell
// source is trimmed of surrounding whitespace, mirroring the flat codec's
// block trimming; both forms must fingerprint the same content or a settled
// pair would classify as changed on every pass.
func Decode(name string, data []byte) (*models.Document, error) {
	var nb notebookIn
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&nb); err != nil {
		return nil, fmt.Errorf("notebook: %w: %v", apperr.ErrNotebookParse, err)
	}

	chunks := make([]models.Chunk, len(nb.Cells))
	for i, c := range nb.Cells {
		chunk := models.Chunk{
			Content:  strings.TrimSpace(string(c.Source)),
			Metadata: c.Metadata,
		}
		if c.CellType == "markdown" {
			chunk.Kind = models.Narrative
		} else {
			chunk.Kind = models.Executable
			chunk.Outputs = c.Outputs
			chunk.ExecutionCount = c.ExecutionCount
		}
		chunks[i] = chunk
	}

	return &models.Document{
		Name:     name,
		Chunks:   chunks,
		Metadata: nb.Metadata,
	}, nil
}

// FromChunks builds a Document from typed chunks, stamping default kernel
// metadata. This is the construction path for documents whose authoritative
// source is the flat form.
func FromChunks(name string, chunks []models.Chunk, defs Defaults) *models.Document {
	return &models.Document{
		Name:     name,
		Chunks:   chunks,
		Metadata: defs.metadataJSON(),
	}
}

func (d Defaults) metadataJSON() json.RawMessage {
	meta := map[string]any{
		"kernelspec": map[string]string{
			"display_name": d.DisplayName,
			"language":     d.Language,
			"name":         d.KernelName,
		},
		"language_info": map[string]string{
			"name":    d.Language,
			"version": d.LanguageVersion,
		},
	}
	data, _ := json.Marshal(meta)
	return data
}

// markdownCell and codeCell mirror the nbformat v4 cell shapes. Outputs and
// execution_count keys must be present on code cells and absent on markdown
// cells, hence two structs instead of omitempty juggling.
type markdownCell struct {
	CellType string          `json:"cell_type"`
	Metadata json.RawMessage `json:"metadata"`
	Source   string          `json:"source"`
}

type codeCell struct {
	CellType       string          `json:"cell_type"`
	ExecutionCount *int            `json:"execution_count"`
	Metadata       json.RawMessage `json:"metadata"`
	Outputs        json.RawMessage `json:"outputs"`
	Source         string          `json:"source"`
}

type notebookOut struct {
	Cells    []any           `json:"cells"`
	Metadata json.RawMessage `json:"metadata"`
	Format   int             `json:"nbformat"`
	Minor    int             `json:"nbformat_minor"`
}

// Encode renders a Document as 2-space-indented structured-form JSON.
// A document without a metadata block gets the given defaults.
func Encode(doc *models.Document, defs Defaults) ([]byte, error) {
	meta := doc.Metadata
	if len(meta) == 0 {
		meta = defs.metadataJSON()
	}

	cells := make([]any, len(doc.Chunks))
	for i, c := range doc.Chunks {
		cellMeta := c.Metadata
		if len(cellMeta) == 0 {
			cellMeta = json.RawMessage(`{}`)
		}
		if c.Kind == models.Narrative {
			cells[i] = markdownCell{
				CellType: "markdown",
				Metadata: cellMeta,
				Source:   c.Content,
			}
			continue
		}
		outputs := c.Outputs
		if len(outputs) == 0 {
			outputs = json.RawMessage(`[]`)
		}
		cells[i] = codeCell{
			CellType:       "code",
			ExecutionCount: c.ExecutionCount,
			Metadata:       cellMeta,
			Outputs:        outputs,
			Source:         c.Content,
		}
	}

	data, err := json.MarshalIndent(notebookOut{
		Cells:    cells,
		Metadata: meta,
		Format:   nbFormat,
		Minor:    nbFormatMinor,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("notebook: encode: %w", err)
	}
	return data, nil
}
