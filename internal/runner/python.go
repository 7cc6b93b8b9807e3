package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

// sentinel precedes each chunk's output on the interpreter's stdout. The
// record-separator control byte keeps it out of ordinary program output.
const sentinel = "\x1enbsync-chunk\x1e"

// harness runs inside the interpreter: it reads the chunk sources as a JSON
// array on stdin and execs each one in a shared globals dict, printing a
// sentinel line before each chunk so the captured stream can be split.
const harness = `import json, sys
chunks = json.load(sys.stdin)
g = {"__name__": "__main__"}
for i, src in enumerate(chunks):
    sys.stdout.flush()
    sys.stderr.flush()
    sys.stdout.write("\x1enbsync-chunk\x1e%d\n" % i)
    sys.stdout.flush()
    exec(compile(src, "<chunk %d>" % i, "exec"), g)
sys.stdout.flush()
sys.stderr.flush()
`

// Python executes documents by spawning one interpreter process per
// document, so executable chunks share interpreter state in order, like
// cells in a kernel session.
type Python struct {
	Interpreter string        // interpreter binary, e.g. "python3"
	Timeout     time.Duration // whole-document budget
}

// streamOutput is the captured combined stdout/stderr of one chunk, in the
// structured form's output shape.
type streamOutput struct {
	OutputType string `json:"output_type"`
	Name       string `json:"name"`
	Text       string `json:"text"`
}

// Run executes every executable chunk of doc and returns a copy with
// captured outputs and sequential execution counts. stderr is folded into
// the captured stream. A non-zero exit or an expired timeout fails the whole
// document.
func (p *Python) Run(ctx context.Context, doc *models.Document) (*models.Document, error) {
	var sources []string
	for _, c := range doc.Chunks {
		if c.Kind == models.Executable {
			sources = append(sources, c.Content)
		}
	}
	if len(sources) == 0 {
		return doc, nil
	}

	stdin, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("runner: marshal sources: %w", err)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	interp := p.Interpreter
	if interp == "" {
		interp = "python3"
	}
	cmd := exec.CommandContext(ctx, interp, "-c", harness)
	cmd.Stdin = bytes.NewReader(stdin)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("runner: %w: %s timed out after %s", apperr.ErrExecution, doc.Name, p.Timeout)
	}
	if runErr != nil {
		return nil, fmt.Errorf("runner: %w: %s: %v: %s",
			apperr.ErrExecution, doc.Name, runErr, tail(combined.String(), 2048))
	}

	outputs := splitOutputs(combined.String(), len(sources))

	out := &models.Document{
		Name:     doc.Name,
		Chunks:   make([]models.Chunk, len(doc.Chunks)),
		Metadata: doc.Metadata,
	}
	execIdx := 0
	for i, c := range doc.Chunks {
		out.Chunks[i] = c
		if c.Kind != models.Executable {
			continue
		}
		count := execIdx + 1
		out.Chunks[i].ExecutionCount = &count
		out.Chunks[i].Outputs = encodeOutputs(outputs[execIdx])
		execIdx++
	}
	return out, nil
}

// splitOutputs separates the combined stream into one section per chunk
// using the sentinel lines. Output that arrives before the first sentinel
// (interpreter noise) is discarded.
func splitOutputs(stream string, n int) []string {
	out := make([]string, n)
	sections := strings.Split(stream, sentinel)
	// sections[0] precedes the first sentinel.
	for _, sec := range sections[1:] {
		idxStr, rest, ok := strings.Cut(sec, "\n")
		if !ok {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil || idx < 0 || idx >= n {
			continue
		}
		out[idx] = rest
	}
	return out
}

func encodeOutputs(text string) json.RawMessage {
	if text == "" {
		return json.RawMessage(`[]`)
	}
	data, _ := json.Marshal([]streamOutput{{
		OutputType: "stream",
		Name:       "stdout",
		Text:       text,
	}})
	return data
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
