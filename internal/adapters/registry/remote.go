package registry

import (
	"context"
	"net/http"
	"strings"

	"go.trai.ch/zerr"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const userAgent = "dockyard"

// RemoteConfig configures access to a registry host.
type RemoteConfig struct {
	// Host is the registry host[:port]. Buckets become repositories under it.
	Host      string
	PlainHTTP bool
	// Credentials is consulted per host; nil means anonymous access.
	Credentials credentials.Store
}

// DockerCredentials returns the credential store configured for the docker CLI.
func DockerCredentials() (credentials.Store, error) {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load docker credentials")
	}
	return store, nil
}

// NewRemote creates a Store backed by repositories on a registry host.
func NewRemote(cfg RemoteConfig, opts ...Option) (*Store, error) {
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(cfg.Host, "https://"), "http://"), "/")
	if host == "" {
		return nil, zerr.New("registry host is empty")
	}

	client := &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if cfg.Credentials == nil {
				return auth.EmptyCredential, nil
			}
			return cfg.Credentials.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{userAgent},
		},
	}

	targets := func(_ context.Context, bucket string) (oras.Target, error) {
		repo, err := remote.NewRepository(host + "/" + bucket)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "invalid repository reference"), "bucket", bucket)
		}
		repo.PlainHTTP = cfg.PlainHTTP
		repo.Client = client
		return repo, nil
	}

	return New(targets, opts...), nil
}
