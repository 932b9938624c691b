//go:build property

package watcher

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestWatcherProperties validates filter and debounce invariants.
func TestWatcherProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("glob filter matches any depth below its base", prop.ForAll(
		func(segments []string, name string) bool {
			filter := GlobFilter("dev/sass/**/*.scss")
			dir := strings.Join(append([]string{"dev", "sass"}, segments...), "/")
			return filter(dir+"/"+name+".scss") && !filter(dir+"/"+name+".less")
		},
		gen.SliceOfN(3, gen.Identifier()),
		gen.Identifier(),
	))

	properties.Property("debounced batch holds each path once, sorted", prop.ForAll(
		func(indices []int) bool {
			d := &Debouncer{
				delay:  time.Hour,
				events: make(chan ChangeEvent, 1),
				output: make(chan []ChangeEvent, 1),
			}
			unique := make(map[string]bool)
			for _, i := range indices {
				path := fmt.Sprintf("/p/%d", i)
				unique[path] = true
				d.pending = append(d.pending, ChangeEvent{Path: path})
			}
			d.flush()

			if len(unique) == 0 {
				return len(d.output) == 0
			}
			batch := <-d.output
			if len(batch) != len(unique) {
				return false
			}
			return sort.SliceIsSorted(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
