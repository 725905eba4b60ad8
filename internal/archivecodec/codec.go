// Package archivecodec implements the archive codec interface: pack a
// folder to a single file, unpack a file to a folder, identify the
// format by a short tag. mholt/archives, STARRY-S/zip, and
// klauspost/compress each get a concrete, directly-imported home here.
package archivecodec

import "sync"

// Codec is the external collaborator the session manager drives to
// materialise an archive into a sandbox and to repack a sandbox back
// into an archive on flush.
//
// Guarantees expected by callers: directory structure is preserved,
// path separators inside the archive are forward slashes, and entry
// names are UTF-8.
type Codec interface {
	// Pack writes folder's content recursively to destFile, replacing
	// any existing file at that path. Paths ending in any of
	// excludedEndings are omitted.
	Pack(folder, destFile string, excludedEndings ...string) error

	// Unpack materialises archive's content into destFolder, creating
	// intermediate directories as needed.
	Unpack(archive, destFolder string) error

	// Identifier returns the codec's short tag, e.g. "ZIP".
	Identifier() string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Codec{}
)

func init() {
	Register(NewDefault())
	Register(NewStarry())
}

// Register adds c to the process-wide codec registry, keyed by its
// Identifier(). Intended for the cmd/vga CLI wrapper to resolve a
// codec by flag.
func Register(c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Identifier()] = c
}

// Lookup returns the registered codec for identifier, or false if none
// is registered.
func Lookup(identifier string) (Codec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[identifier]
	return c, ok
}
