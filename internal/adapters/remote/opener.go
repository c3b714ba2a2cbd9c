// Package remote builds the object store selected by the workspace configuration.
package remote

import (
	"context"

	"go.trai.ch/dockyard/internal/adapters/cas"
	"go.trai.ch/dockyard/internal/adapters/memstore"
	"go.trai.ch/dockyard/internal/adapters/registry"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/zerr"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// DefaultRoot is the fs store root used when none is configured.
const DefaultRoot = ".dockyard/remote"

// Opener implements ports.StoreOpener.
type Opener struct {
	credentials func() (credentials.Store, error)
}

// NewOpener creates an Opener that reads registry credentials from the docker configuration.
func NewOpener() *Opener {
	return &Opener{credentials: registry.DockerCredentials}
}

// Open returns the backend named by cfg.Kind. An empty kind selects the fs store.
func (o *Opener) Open(_ context.Context, cfg domain.RemoteConfig) (ports.ObjectStore, error) {
	switch cfg.Kind {
	case domain.RemoteFS, "":
		root := cfg.Root
		if root == "" {
			root = DefaultRoot
		}
		store, err := cas.NewStore(root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.RemoteOCI:
		creds, err := o.credentials()
		if err != nil {
			return nil, err
		}
		store, err := registry.NewRemote(registry.RemoteConfig{
			Host:        cfg.Registry,
			PlainHTTP:   cfg.PlainHTTP,
			Credentials: creds,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.RemoteMemory:
		return memstore.New(), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownRemote, "no backend for remote kind"), "kind", cfg.Kind)
	}
}
