// Package memory persists long-lived agent knowledge as keyed text entries.
//
// Keys are slash-separated paths whose first segment is a namespace. Entries
// under NamespaceNotes are appended to agent system prompts; entries under
// NamespaceDocuments are loaded into a retrieval index so agents can search
// them.
//
//	store := memory.NewFileStore("./knowledge")
//	notes, err := memory.Notes(ctx, store)
//	docs, err := memory.Documents(ctx, store)
package memory

import "context"

// Store reads and writes entries. Implementations do no caching.
type Store interface {
	// List returns every key in the store, sorted.
	List(ctx context.Context) ([]string, error)
	// Load returns entries for keys in the order requested.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save creates or overwrites entries.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes entries. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
