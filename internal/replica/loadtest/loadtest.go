// Package loadtest simulates many devices editing one partition at once.
//
// Every device runs its own scheduler against a shared in-memory remote with
// artificial latency. Devices add hives to one shared apiary, record
// inspections on their own hives and delete some of them, while debounced
// flushes and polls race each other. After the edits, devices flush in turn
// until every replica holds the same entities, and the result reports flush
// latency and any entity that was lost or resurrected.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/remote/memstore"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// SharedApiaryID is the apiary every device adds hives to.
const SharedApiaryID = "apiary-shared"

// Options configures a simulation.
type Options struct {
	Devices        int
	EditsPerDevice int
	EditInterval   time.Duration // pause between a device's edits
	Latency        time.Duration // remote call latency
	Debounce       time.Duration
	PollInterval   time.Duration
	Seed           int64

	// Dir, when set, gives each device a SQLite replica file there instead
	// of in-memory storage.
	Dir string

	Logger *log.Logger
}

// DefaultOptions returns a small, quick simulation.
func DefaultOptions() Options {
	return Options{
		Devices:        5,
		EditsPerDevice: 20,
		EditInterval:   2 * time.Millisecond,
		Latency:        2 * time.Millisecond,
		Debounce:       10 * time.Millisecond,
		PollInterval:   25 * time.Millisecond,
		Seed:           42,
	}
}

// LatencyStats captures flush latency.
type LatencyStats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Flushes int
	Errors  int
}

// Result summarizes a simulation.
type Result struct {
	Devices     int
	Edits       int
	Deletes     int
	Entities    int // live entities on the remote after convergence
	Tombstones  int
	Converged   bool
	Lost        []string // expected live ids missing from some replica
	Resurrected []string // deleted ids present in some replica
	Flush       *LatencyStats
	Elapsed     time.Duration
}

// memStorage is scheduler storage held in memory.
type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStorage) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) SetMany(values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

// device is one simulated client.
type device struct {
	id      int
	sched   *scheduler.Scheduler
	closer  io.Closer
	rng     *rand.Rand
	hives   []string            // own live hives
	created map[string][]string // own hive -> its inspections
	deleted []string
	edits   int
}

// Run executes the simulation.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Devices <= 0 || opts.EditsPerDevice <= 0 {
		return nil, fmt.Errorf("devices and edits per device must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	start := time.Now()

	team := scope.TeamContext("loadtest")
	store := memstore.New()
	store.SetLatency(opts.Latency)
	store.Seed(team, &schema.Dataset{Apiaries: []schema.Apiary{{ID: SharedApiaryID, Name: "Shared"}}}, nil)

	var (
		statsMu   sync.Mutex
		durations []time.Duration
		failures  int
	)
	observe := func(e scheduler.Event) {
		if e.Kind != scheduler.EventFlush {
			return
		}
		statsMu.Lock()
		defer statsMu.Unlock()
		if e.Err != nil {
			failures++
			return
		}
		durations = append(durations, e.Duration)
	}

	devices := make([]*device, opts.Devices)
	defer func() {
		for _, d := range devices {
			if d == nil {
				continue
			}
			_ = d.sched.Stop()
			if d.closer != nil {
				_ = d.closer.Close()
			}
		}
	}()

	for i := range devices {
		d, err := newDevice(ctx, i, team, store, opts, observe, logger)
		if err != nil {
			return nil, err
		}
		devices[i] = d
	}

	// Edit concurrently while debounced flushes and polls run.
	var wg sync.WaitGroup
	errs := make(chan error, len(devices))
	for _, d := range devices {
		wg.Add(1)
		go func(d *device) {
			defer wg.Done()
			if err := d.edit(ctx, opts); err != nil {
				errs <- fmt.Errorf("device %d: %w", d.id, err)
			}
		}(d)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		return nil, err
	}

	// Quiesce: after this no device is dirty, so no debounced push can race
	// the sequential rounds below.
	for _, d := range devices {
		wg.Add(1)
		go func(d *device) {
			defer wg.Done()
			_ = d.sched.FlushNow(ctx)
		}(d)
	}
	wg.Wait()

	// The first round collects every replica into the remote, the second
	// hands the union back to every device.
	for round := 0; round < 2; round++ {
		for _, d := range devices {
			if err := d.sched.FlushNow(ctx); err != nil {
				return nil, fmt.Errorf("device %d final flush: %w", d.id, err)
			}
		}
	}

	res := &Result{Devices: opts.Devices}
	expected := map[string]bool{SharedApiaryID: true}
	gone := tombstone.New()
	for _, d := range devices {
		res.Edits += d.edits
		res.Deletes += len(d.deleted)
		for hive, inspections := range d.created {
			expected[hive] = true
			for _, in := range inspections {
				expected[in] = true
			}
		}
		for _, id := range d.deleted {
			gone.Add(id)
		}
	}

	lost := make(map[string]bool)
	resurrected := make(map[string]bool)
	var reference map[string]bool
	res.Converged = true
	for _, d := range devices {
		ds, tombs, _, err := d.sched.Snapshot()
		if err != nil {
			return nil, err
		}
		ids := ds.IDs()
		for id := range expected {
			if !ids[id] {
				lost[id] = true
			}
		}
		for id := range ids {
			if gone.Has(id) {
				resurrected[id] = true
			}
		}
		if reference == nil {
			reference = ids
			res.Entities = len(ids)
			res.Tombstones = tombs.Len()
		} else if !sameKeys(reference, ids) {
			res.Converged = false
		}
	}
	res.Lost = sortedKeys(lost)
	res.Resurrected = sortedKeys(resurrected)
	if len(res.Lost) > 0 || len(res.Resurrected) > 0 {
		res.Converged = false
	}

	statsMu.Lock()
	res.Flush = computeLatencyStats(durations)
	res.Flush.Errors = failures
	statsMu.Unlock()
	res.Elapsed = time.Since(start)

	logger.Printf("Simulation done: %d devices, %d edits, converged=%v in %v", res.Devices, res.Edits, res.Converged, res.Elapsed)
	return res, nil
}

func newDevice(ctx context.Context, i int, team scope.Context, store *memstore.Store, opts Options, observe scheduler.Observer, logger *log.Logger) (*device, error) {
	var (
		storage scheduler.Storage = &memStorage{data: make(map[string][]byte)}
		closer  io.Closer
	)
	if opts.Dir != "" {
		ls, err := localstore.Open(filepath.Join(opts.Dir, fmt.Sprintf("device-%02d.db", i)))
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		storage, closer = ls, ls
	}

	sched, err := scheduler.NewWithConfig(team, store, storage, &scheduler.Config{
		DebounceInterval: opts.Debounce,
		PollInterval:     opts.PollInterval,
		CallTimeout:      10 * time.Second,
		Logger:           logger,
		Observer:         observe,
	})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("device %d: %w", i, err)
	}
	sched.Start()

	d := &device{
		id:      i,
		sched:   sched,
		closer:  closer,
		rng:     rand.New(rand.NewSource(opts.Seed + int64(i))),
		created: make(map[string][]string),
	}
	if err := sched.Authenticate(ctx); err != nil {
		_ = sched.Stop()
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("device %d seed: %w", i, err)
	}
	return d, nil
}

// edit performs the device's edits: mostly new hives in the shared apiary,
// some inspections on its own hives and the occasional hive deletion.
func (d *device) edit(ctx context.Context, opts Options) error {
	for n := 0; n < opts.EditsPerDevice; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		roll := d.rng.Intn(10)
		switch {
		case roll < 2 && len(d.hives) > 1:
			idx := d.rng.Intn(len(d.hives))
			hive := d.hives[idx]
			if _, err := d.sched.Delete(hive); err != nil {
				return err
			}
			d.hives = append(d.hives[:idx], d.hives[idx+1:]...)
			d.deleted = append(d.deleted, hive)
			d.deleted = append(d.deleted, d.created[hive]...)
			delete(d.created, hive)
		case roll < 5 && len(d.hives) > 0:
			hive := d.hives[d.rng.Intn(len(d.hives))]
			in := schema.Inspection{
				ID:          fmt.Sprintf("d%02d-inspection-%03d", d.id, n),
				Date:        schema.NewDate(time.Now()),
				BroodFrames: d.rng.Intn(10),
			}
			if err := d.sched.Update(func(ds *schema.Dataset) error {
				return ds.UpsertInspection(hive, in)
			}); err != nil {
				return err
			}
			d.created[hive] = append(d.created[hive], in.ID)
		default:
			h := schema.Hive{
				ID:     fmt.Sprintf("d%02d-hive-%03d", d.id, n),
				Name:   fmt.Sprintf("Device %d hive %d", d.id, n),
				Status: schema.StatusHealthy,
			}
			if err := d.sched.Update(func(ds *schema.Dataset) error {
				return ds.UpsertHive(SharedApiaryID, h)
			}); err != nil {
				return err
			}
			d.hives = append(d.hives, h.ID)
			d.created[h.ID] = nil
		}
		d.edits++
		if opts.EditInterval > 0 {
			time.Sleep(opts.EditInterval)
		}
	}
	return nil
}

func sameKeys(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Mean:    sum / time.Duration(len(durations)),
		P50:     sorted[len(sorted)*50/100],
		P95:     sorted[len(sorted)*95/100],
		P99:     sorted[len(sorted)*99/100],
		Flushes: len(durations),
	}
}

// Print formats the result for a terminal.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Convergence Simulation:\n")
	fmt.Fprintf(w, "  Devices:       %d\n", r.Devices)
	fmt.Fprintf(w, "  Edits:         %d (%d deleted ids)\n", r.Edits, r.Deletes)
	fmt.Fprintf(w, "  Entities:      %d\n", r.Entities)
	fmt.Fprintf(w, "  Tombstones:    %d\n", r.Tombstones)
	fmt.Fprintf(w, "  Converged:     %v\n", r.Converged)
	if len(r.Lost) > 0 {
		fmt.Fprintf(w, "  Lost:          %v\n", r.Lost)
	}
	if len(r.Resurrected) > 0 {
		fmt.Fprintf(w, "  Resurrected:   %v\n", r.Resurrected)
	}
	fmt.Fprintf(w, "Flush Latency:\n")
	fmt.Fprintf(w, "  Flushes:       %d (%d failed)\n", r.Flush.Flushes, r.Flush.Errors)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", r.Flush.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", r.Flush.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", r.Flush.P95)
	fmt.Fprintf(w, "  Max:           %v\n", r.Flush.Max)
	fmt.Fprintf(w, "  Elapsed:       %v\n", r.Elapsed)
}
