package memory

import (
	"fmt"
	"path"
	"strings"
)

const (
	NamespaceNotes     = "notes"
	NamespaceDocuments = "documents"
)

// Entry is one stored value.
type Entry struct {
	Key   string
	Value []byte
}

// Key joins a namespace and a name into an entry key.
func Key(namespace, name string) string {
	return path.Join(namespace, name)
}

// Namespace returns the first segment of key.
func Namespace(key string) string {
	ns, _, _ := strings.Cut(key, "/")
	return ns
}

// validateKey rejects keys that would escape the store root or name hidden
// files.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.HasPrefix(seg, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
