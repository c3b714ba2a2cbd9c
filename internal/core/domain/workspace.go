package domain

// Remote store kinds understood by the store opener.
const (
	RemoteFS     = "fs"
	RemoteOCI    = "oci"
	RemoteMemory = "memory"
)

// RemoteConfig selects and configures the object store backend.
type RemoteConfig struct {
	Kind string
	// Root is the base directory of the fs backend.
	Root string
	// Registry is the host[:port] of the oci backend.
	Registry  string
	PlainHTTP bool
}

// DiffSpec describes one configured archive diff.
type DiffSpec struct {
	Name        string
	Base        string
	Target      string
	Output      string
	Compression Compression
}

// Workspace is the validated content of a dockyard.yaml file.
type Workspace struct {
	// Root is the directory holding the configuration file. Relative paths are resolved against it.
	Root   string
	Remote RemoteConfig
	// Caches and Diffs are sorted by name.
	Caches []CacheSpec
	Diffs  []DiffSpec
}

// Cache returns the cache spec called name.
func (w *Workspace) Cache(name string) (CacheSpec, bool) {
	for _, c := range w.Caches {
		if c.Name == name {
			return c, true
		}
	}
	return CacheSpec{}, false
}

// Diff returns the diff spec called name.
func (w *Workspace) Diff(name string) (DiffSpec, bool) {
	for _, d := range w.Diffs {
		if d.Name == name {
			return d, true
		}
	}
	return DiffSpec{}, false
}
