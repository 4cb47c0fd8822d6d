// Package merge combines a local and a remote replica plus a tombstone set
// into one converged dataset.
//
// # Algorithm
//
// Every collection, at every nesting level, is merged the same way:
//
//  1. Ids are taken from both sides.
//  2. Ids in the tombstone set are dropped.
//  3. An entity on both sides is resolved by its conflict policy; an entity
//     on one side is taken as is (its nested collections still lose their
//     tombstoned members).
//  4. Survivors are emitted in local order, followed by remote-only
//     entities in remote order.
//
// # Conflict policies
//
// Apiaries, hives, leaf records, calendar events and bloom records use the
// local-wins overlay: scalar fields come from the local version, free-form
// maps are overlaid key by key (local keys win), and nested collections are
// merged recursively rather than replaced.
//
// Seasonal notes use their UpdatedAt timestamp instead: the newer version
// wins wholesale, ties go to local, and the blooms of both versions are
// still merged with the local-wins overlay.
//
// After apiaries are merged, a hive that ends up under two apiaries (one
// replica transferred it, the other still has the old placement) is kept
// under the apiary named by its most recent Movement.
//
// # Guarantees
//
// Merge is pure and total: nil or partial input is treated as empty, the
// inputs are never modified or aliased by the output, and merging the result
// again with the same remote and tombstones yields the same dataset.
package merge
