// Package reconcile decides which on-disk form of a document is
// authoritative for a sync pass.
package reconcile

import (
	"github.com/starford/nbsync/internal/fingerprint"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/script"
)

// Outcome classifies a reconciliation decision. The write-back behavior is
// the same for every outcome (both forms are re-materialized from the
// authoritative document); the tag exists for reporting, and conflicts are
// surfaced distinctly because they imply loss of one side's edits.
type Outcome string

const (
	NoChange               Outcome = "no_change"
	StructuredWins         Outcome = "structured_wins"
	FlatWins               Outcome = "flat_wins"
	ConflictStructuredWins Outcome = "conflict_structured_wins"
)

// Conflict reports whether the outcome represents independent divergence of
// both forms.
func (o Outcome) Conflict() bool { return o == ConflictStructuredWins }

// Result is the decision for one document.
type Result struct {
	Outcome Outcome
	// Doc is the authoritative document both forms are re-materialized from.
	Doc *models.Document
	// Ref is the last-synced fingerprint embedded in the flat form, empty
	// when the flat form was absent or carried no header.
	Ref string
	// StructHash and FlatHash are the fingerprints computed from the current
	// artifacts, empty when the corresponding form was absent.
	StructHash string
	FlatHash   string
}

// Reconcile decides the authoritative form for a document. nbData and
// scriptData are the raw on-disk artifacts; either may be nil when the
// corresponding form is absent. A nil Result means neither form exists
// (defensive no-op; such a name should not have been enumerated).
func Reconcile(name string, nbData, scriptData []byte, defs notebook.Defaults) (*Result, error) {
	if nbData == nil && scriptData == nil {
		return nil, nil
	}

	// First-time export: only the structured form exists.
	if scriptData == nil {
		doc, err := notebook.Decode(name, nbData)
		if err != nil {
			return nil, err
		}
		return &Result{
			Outcome:    StructuredWins,
			Doc:        doc,
			StructHash: fingerprint.Compute(doc.Contents()),
		}, nil
	}

	ref, blocks, err := script.Decode(scriptData)
	if err != nil {
		return nil, err
	}
	flatDoc := notebook.FromChunks(name, script.Chunks(blocks), defs)
	flatHash := fingerprint.Compute(flatDoc.Contents())

	// First-time import: only the flat form exists.
	if nbData == nil {
		return &Result{
			Outcome:  FlatWins,
			Doc:      flatDoc,
			Ref:      ref,
			FlatHash: flatHash,
		}, nil
	}

	nbDoc, err := notebook.Decode(name, nbData)
	if err != nil {
		return nil, err
	}
	structHash := fingerprint.Compute(nbDoc.Contents())

	res := &Result{
		Ref:        ref,
		StructHash: structHash,
		FlatHash:   flatHash,
	}
	switch {
	case ref == structHash && ref == flatHash:
		// Converged; the structured side is the cheaper no-op path.
		res.Outcome = NoChange
		res.Doc = nbDoc
	case ref == flatHash && ref != structHash:
		res.Outcome = StructuredWins
		res.Doc = nbDoc
	case ref == structHash && ref != flatHash:
		res.Outcome = FlatWins
		res.Doc = flatDoc
	default:
		// Both sides diverged since the last sync. Structured wins, but the
		// caller must surface the event; flat-side edits are lost.
		res.Outcome = ConflictStructuredWins
		res.Doc = nbDoc
	}
	return res, nil
}
