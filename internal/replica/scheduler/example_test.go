package scheduler_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/remote/memstore"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

// Example demonstrates the lifecycle of a scheduler: seed, edit, flush.
func Example() {
	store, err := localstore.Open("/tmp/hivesync-example/replica.db")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	config := scheduler.DefaultConfig()
	config.DebounceInterval = 500 * time.Millisecond

	s, err := scheduler.NewWithConfig(scope.PersonalContext(), memstore.New(), store, config)
	if err != nil {
		log.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The replica accepts edits once the first pull has seeded it.
	if err := s.Authenticate(ctx); err != nil {
		log.Fatal(err)
	}

	err = s.Update(func(ds *schema.Dataset) error {
		ds.UpsertApiary(schema.Apiary{ID: schema.NewID(), Name: "Orchard"})
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := s.FlushNow(ctx); err != nil {
		log.Fatal(err)
	}

	st, _ := s.Status()
	fmt.Printf("state=%s version=%s\n", st.State, st.Version)
}

// ExampleConfig_observer shows how to watch sync outcomes.
func ExampleConfig_observer() {
	config := scheduler.DefaultConfig()
	config.Observer = func(e scheduler.Event) {
		if e.Kind == scheduler.EventFlush && e.Err != nil {
			log.Printf("flush for %s failed: %v", e.Context, e.Err)
		}
	}
	_ = config
}
