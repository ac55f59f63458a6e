package memory

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/tailored-agentic-units/stepflow/retrieval"
)

// LoadNamespace returns every entry under namespace, sorted by key.
func LoadNamespace(ctx context.Context, store Store, namespace string) ([]Entry, error) {
	keys, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var selected []string
	for _, key := range keys {
		if Namespace(key) == namespace && strings.Contains(key, "/") {
			selected = append(selected, key)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	entries, err := store.Load(ctx, selected...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", namespace, err)
	}
	return entries, nil
}

// Notes joins all note entries with blank lines, ready to append to a
// system prompt. It returns "" when there are none.
func Notes(ctx context.Context, store Store) (string, error) {
	entries, err := LoadNamespace(ctx, store, NamespaceNotes)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if text := strings.TrimSpace(string(e.Value)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Documents converts document entries into retrieval documents. The ID is
// the key without the namespace; metadata records the key and the file
// extension.
func Documents(ctx context.Context, store Store) ([]retrieval.Document, error) {
	entries, err := LoadNamespace(ctx, store, NamespaceDocuments)
	if err != nil {
		return nil, err
	}

	docs := make([]retrieval.Document, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimPrefix(e.Key, NamespaceDocuments+"/")
		docs = append(docs, retrieval.Document{
			ID:      id,
			Content: string(e.Value),
			Metadata: map[string]string{
				"key": e.Key,
				"ext": strings.TrimPrefix(path.Ext(id), "."),
			},
		})
	}
	return docs, nil
}
