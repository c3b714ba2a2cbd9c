package ports

// Hasher fingerprints file trees.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// Fingerprint returns a stable hex digest over the files matched by paths under root.
	// Paths may name files, directories or glob patterns.
	Fingerprint(root string, paths []string) (string, error)
}
