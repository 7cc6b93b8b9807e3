package api

import (
	"time"

	"github.com/starford/nbsync/internal/docservice"
)

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = docservice.DocumentDetail

// DocumentListItem is a lightweight item in a list response (aliased from the domain layer).
type DocumentListItem = docservice.DocumentListItem

// DocumentListResponse wraps document listings.
type DocumentListResponse struct {
	Documents []DocumentListItem `json:"documents"`
	Total     int                `json:"total"`
}

// SyncResponse summarizes a sync pass.
type SyncResponse struct {
	Processed int      `json:"processed"`
	Conflicts []string `json:"conflicts"`
	Failed    []string `json:"failed"`
}

// SyncOneResponse reports the outcome for a single document.
type SyncOneResponse struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// HistoryEntry is one sync-journal record in the API response.
type HistoryEntry struct {
	Name       string    `json:"name"`
	Outcome    string    `json:"outcome"`
	RefHash    string    `json:"ref_hash,omitempty"`
	StructHash string    `json:"struct_hash,omitempty"`
	FlatHash   string    `json:"flat_hash,omitempty"`
	Error      string    `json:"error,omitempty"`
	SyncedAt   time.Time `json:"synced_at"`
}

// HistoryResponse wraps journal listings.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}
