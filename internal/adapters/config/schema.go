package config

// Dockyardfile is the structure of the dockyard.yaml configuration file.
type Dockyardfile struct {
	Version string              `yaml:"version"`
	Remote  RemoteDTO           `yaml:"remote"`
	Caches  map[string]CacheDTO `yaml:"caches"`
	Diffs   map[string]DiffDTO  `yaml:"diffs"`
}

// RemoteDTO selects the object store backend.
type RemoteDTO struct {
	Kind      string `yaml:"kind"`
	Root      string `yaml:"root"`
	Registry  string `yaml:"registry"`
	PlainHTTP bool   `yaml:"plain_http"`
}

// CacheDTO is a cache definition in the configuration.
type CacheDTO struct {
	Hash        string   `yaml:"hash"`
	Build       string   `yaml:"build"`
	Output      string   `yaml:"output"`
	Bucket      string   `yaml:"bucket"`
	Prefix      string   `yaml:"prefix"`
	Parameters  []string `yaml:"parameters"`
	Compression string   `yaml:"compression"`
}

// DiffDTO is a diff definition in the configuration.
type DiffDTO struct {
	Base        string `yaml:"base"`
	Target      string `yaml:"target"`
	Output      string `yaml:"output"`
	Compression string `yaml:"compression"`
}
