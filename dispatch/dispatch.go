// Package dispatch implements NAAb's polyglot dependency analysis and
// parallel dispatcher (§4.10): independent polyglot blocks within the same
// lexical scope are grouped into a dependency DAG and each independent group
// is run concurrently, with a deterministic, source-order merge of results.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/naab-lang/naab/gc"
	"github.com/naab-lang/naab/polyglot"
	"github.com/naab-lang/naab/value"
)

// Job is one polyglot block's unit of dispatch work: its inputs (explicit
// binding names plus identifiers appearing in the body) and output (the name
// it will be bound to, "" if none), plus the request to hand the polyglot
// registry. Requests are populated per group, at launch time, so a job's
// snapshot observes every earlier group's committed results.
type Job struct {
	ID      string
	Lang    string
	Reads   []string
	Writes  string
	Request polyglot.Request
}

// Dispatcher runs groups of independent Jobs concurrently, one goroutine per
// job via errgroup, with a deterministic source-order merge (§4.10). The
// caller walks the groups AnalyzeGroups produced, preparing each group's
// binding snapshots before launching it.
type Dispatcher struct {
	poly    *polyglot.Registry
	timeout time.Duration
}

func New(poly *polyglot.Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{poly: poly, timeout: timeout}
}

// AnalyzeGroups partitions jobs (in source order) into maximal independent
// groups: job i depends on job j (i > j) if i reads something j writes, or
// both write the same name — "if in doubt, serialize" (§4.10). Each group is
// the maximal run of consecutive jobs with no dependency edge between any
// pair within it.
func AnalyzeGroups(jobs []Job) [][]int {
	var groups [][]int
	var current []int
	writesSoFarInGroup := map[string]bool{}

	for i, j := range jobs {
		dependsOnGroup := false
		for _, r := range j.Reads {
			if writesSoFarInGroup[r] {
				dependsOnGroup = true
				break
			}
		}
		if !dependsOnGroup && j.Writes != "" && writesSoFarInGroup[j.Writes] {
			dependsOnGroup = true
		}
		if dependsOnGroup && len(current) > 0 {
			groups = append(groups, current)
			current = nil
			writesSoFarInGroup = map[string]bool{}
		}
		current = append(current, i)
		if j.Writes != "" {
			writesSoFarInGroup[j.Writes] = true
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// RunGroup executes one independent group of jobs concurrently, snapshotting
// the group's bindings as extra GC roots for its lifetime (§4.7, §4.10).
// Results come back in the group's own order. Every job runs to completion
// regardless of a sibling's failure; if any erred, the error from the
// textually earliest job wins (§4.10). A single-job group runs in place with
// no goroutine overhead and registers no snapshot roots.
func (d *Dispatcher) RunGroup(ctx context.Context, jobs []*Job, collectorGC *gc.GC) ([]*value.Value, error) {
	for _, j := range jobs {
		if j.Request.Timeout == 0 {
			j.Request.Timeout = d.timeout
		}
	}

	if len(jobs) == 1 {
		res, err := d.poly.Execute(ctx, jobs[0].Lang, jobs[0].Request)
		if err != nil {
			return nil, err
		}
		return []*value.Value{res}, nil
	}

	snapshotToken := &value.Value{}
	var snapshot []*value.Value
	for _, j := range jobs {
		for _, b := range j.Request.Bindings {
			snapshot = append(snapshot, b)
		}
	}
	if collectorGC != nil {
		collectorGC.RegisterSnapshotRoot(snapshotToken, snapshot)
		defer collectorGC.ReleaseSnapshotRoot(snapshotToken)
	}

	// Errors are collected per-slot rather than returned from the goroutine,
	// so the group's outcome is resolved by source order rather than by
	// whichever goroutine's error errgroup observed first.
	var eg errgroup.Group
	results := make([]*value.Value, len(jobs))
	errors := make([]error, len(jobs))
	for i, j := range jobs {
		i, j := i, j
		eg.Go(func() error {
			res, err := d.poly.Execute(ctx, j.Lang, j.Request)
			if err != nil {
				errors[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = eg.Wait()
	for _, err := range errors {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
