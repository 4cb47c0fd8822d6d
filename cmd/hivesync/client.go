package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/hivelog/hivesync/internal/config"
	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/remote/httpstore"
	"github.com/hivelog/hivesync/internal/replica/remote/memstore"
	"github.com/hivelog/hivesync/internal/replica/remote/s3store"
	"github.com/hivelog/hivesync/internal/replica/remote/sqlstore"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

var errOffline = errors.New("this command does not contact the remote")

// openRemote builds the remote store selected by c. The closer is nil for
// stores that hold no resources.
func openRemote(ctx context.Context, c *config.Config) (remote.Store, io.Closer, error) {
	switch c.Remote.Driver {
	case config.DriverHTTP:
		return httpstore.New(c.Remote.URL, c.Remote.APIKey), nil, nil
	case config.DriverSQL:
		st, err := sqlstore.Open(ctx, c.Remote.SQLDriver, c.Remote.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case config.DriverS3:
		st, err := s3store.New(ctx, s3store.Config{
			Bucket:    c.Remote.S3.Bucket,
			Prefix:    c.Remote.S3.Prefix,
			Region:    c.Remote.S3.Region,
			Endpoint:  c.Remote.S3.Endpoint,
			PathStyle: c.Remote.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	case config.DriverMemory:
		return memstore.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}
}

// client bundles the local store, the remote and the context resolver that
// owns the live scheduler.
type client struct {
	config   *config.Config
	store    *localstore.Store
	remote   remote.Store
	closer   io.Closer
	resolver *scope.Resolver[*scheduler.Scheduler]
	observer scheduler.Observer
	logger   *log.Logger
}

// openLocal opens the replica database and resolver without a remote.
// Sessions cannot be started from it.
func openLocal(c *config.Config) (*client, error) {
	store, err := localstore.Open(c.ReplicaPath())
	if err != nil {
		return nil, err
	}
	cl := &client{config: c, store: store, logger: newLogger("scope")}
	offline := func(context.Context, scope.Context) (*scheduler.Scheduler, error) {
		return nil, errOffline
	}
	cl.resolver, err = scope.NewResolver(store, c.Teams, offline, cl.logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cl, nil
}

// openClient opens the replica database and the remote. observer receives
// the events of every scheduler the client starts.
func openClient(ctx context.Context, c *config.Config, observer scheduler.Observer, logger *log.Logger) (*client, error) {
	store, err := localstore.Open(c.ReplicaPath())
	if err != nil {
		return nil, err
	}
	rs, closer, err := openRemote(ctx, c)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open remote: %w", err)
	}

	cl := &client{
		config:   c,
		store:    store,
		remote:   rs,
		closer:   closer,
		observer: observer,
		logger:   logger,
	}
	cl.resolver, err = scope.NewResolver(store, c.Teams, cl.newSession, logger)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	return cl, nil
}

// newSession builds and starts the scheduler of sc.
func (cl *client) newSession(_ context.Context, sc scope.Context) (*scheduler.Scheduler, error) {
	s, err := scheduler.NewWithConfig(sc, cl.remote, cl.store, &scheduler.Config{
		DebounceInterval: cl.config.Sync.Debounce,
		PollInterval:     cl.config.Sync.PollInterval,
		CallTimeout:      cl.config.Sync.Timeout,
		Logger:           cl.logger,
		Observer:         cl.observer,
	})
	if err != nil {
		return nil, err
	}
	s.Start()
	return s, nil
}

// replica reads the persisted replica of the current context.
func (cl *client) replica(ctx context.Context) (*localstore.Replica, error) {
	return cl.store.LoadReplica(ctx, cl.resolver.Current())
}

// Close stops the live session and releases the stores.
func (cl *client) Close() error {
	var errs []error
	if cl.resolver != nil {
		errs = append(errs, cl.resolver.Close())
	}
	if cl.closer != nil {
		errs = append(errs, cl.closer.Close())
	}
	errs = append(errs, cl.store.Close())
	return errors.Join(errs...)
}

// sessionApplier applies inbox mutations to whichever scheduler is live.
type sessionApplier struct {
	ctx      context.Context
	resolver *scope.Resolver[*scheduler.Scheduler]
}

func (a sessionApplier) Update(fn func(ds *schema.Dataset) error) error {
	s, err := a.resolver.Session(a.ctx)
	if err != nil {
		return err
	}
	return s.Update(fn)
}

func (a sessionApplier) Delete(ids ...string) (int, error) {
	s, err := a.resolver.Session(a.ctx)
	if err != nil {
		return 0, err
	}
	return s.Delete(ids...)
}
