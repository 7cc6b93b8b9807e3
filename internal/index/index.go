package index

// DocumentIndex defines the interface for document state and journal
// operations. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow, body string) error
	DeleteDocument(name string) error
	GetDocument(name string) (*DocumentRow, error)
	ListDocuments() ([]DocumentRow, error)
	AllChecksums() (map[string]string, error)
	AppendHistory(rec HistoryRecord) error
	History(name string, limit int) ([]HistoryRecord, error)
	Conflicts(limit int) ([]HistoryRecord, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
