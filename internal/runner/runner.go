// Package runner executes a document's executable chunks and captures their
// outputs into the structured form. Execution semantics beyond "run in order
// and capture output" are out of scope; the sync driver treats a Runner as
// an opaque collaborator.
package runner

import (
	"context"

	"github.com/starford/nbsync/internal/models"
)

// Runner runs all executable chunks of a document in order and returns a
// document with captured outputs attached. Implementations must not mutate
// the input document.
type Runner interface {
	Run(ctx context.Context, doc *models.Document) (*models.Document, error)
}

// Disabled is a Runner that performs no execution and returns the document
// unchanged. Selected when execution is turned off in the configuration.
type Disabled struct{}

// Run returns doc as-is.
func (Disabled) Run(_ context.Context, doc *models.Document) (*models.Document, error) {
	return doc, nil
}
