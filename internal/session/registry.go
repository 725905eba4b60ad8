package session

import "sync"

// registry is the process-wide session registry: the set of absolute
// archive paths currently owned by some opened session. It provides
// atomic insert/remove/contains over that shared mutable state.
var (
	registryMu  sync.Mutex
	registrySet = map[string]bool{}
)

// registryInsert atomically inserts archive into the registry, returning
// false if it was already present.
func registryInsert(archive string) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registrySet[archive] {
		return false
	}
	registrySet[archive] = true
	return true
}

// registryRemove atomically removes archive from the registry. Safe to
// call on an archive that was never registered.
func registryRemove(archive string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registrySet, archive)
}

// registryContains reports whether archive is currently registered.
func registryContains(archive string) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registrySet[archive]
}

// ClearOpenedFilesRecord empties the session registry. An explicit
// escape hatch for recovering a process whose bookkeeping has drifted
// from disk reality; not needed in ordinary operation.
func ClearOpenedFilesRecord() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registrySet = map[string]bool{}
}
