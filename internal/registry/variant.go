// Package registry discovers theme style variants per preprocessor family.
//
// A VariantRegistry is scoped to one build invocation: each family's
// directory is listed at most once and the result is reused until the
// registry is discarded.
package registry

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
)

// VariantRegistry maps each discovered family to its ordered variant names.
type VariantRegistry struct {
	fs        afero.Fs
	sources   map[Family]string
	logger    logging.Logger
	verbosity config.Verbosity

	mutex    sync.Mutex
	order    []Family
	variants map[Family][]string
}

// NewVariantRegistry creates a registry reading family directories from fs.
// sources maps each family to its project-relative source directory.
func NewVariantRegistry(fs afero.Fs, sources map[Family]string, logger logging.Logger, verbosity config.Verbosity) *VariantRegistry {
	return &VariantRegistry{
		fs:        fs,
		sources:   sources,
		logger:    logger.WithComponent("registry"),
		verbosity: verbosity,
		variants:  make(map[Family][]string),
	}
}

// Discover returns the variants defined for family, listing the family's
// source directory on first use only. Unsupported families yield nothing.
// The returned slice is the caller's own copy.
func (r *VariantRegistry) Discover(ctx context.Context, family Family) []string {
	if !family.Valid() {
		if r.verbosity.Enabled(config.VerbosityStages) {
			r.logger.Error(ctx, errors.ErrUnsupportedFamily(string(family)), "Unsupported family")
		}
		return nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	names, ok := r.variants[family]
	if !ok {
		names = r.scan(ctx, family)
		r.variants[family] = names
		r.order = append(r.order, family)

		if r.verbosity.Enabled(config.VerbosityDetail) {
			r.logger.Info(ctx, "Variants discovered",
				"family", family.String(),
				"variants", names)
		}
	}

	return append([]string{}, names...)
}

func (r *VariantRegistry) scan(ctx context.Context, family Family) []string {
	dir, ok := r.sources[family]
	if !ok || dir == "" {
		if r.verbosity.Enabled(config.VerbosityStages) {
			r.logger.Warn(ctx, nil, "No source directory configured", "family", family.String())
		}
		return []string{}
	}

	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		if r.verbosity.Enabled(config.VerbosityStages) && !os.IsNotExist(err) {
			r.logger.Warn(ctx, err, "Failed to list family sources", "family", family.String(), "dir", dir)
		} else if r.verbosity.Enabled(config.VerbosityDetail) {
			r.logger.Debug(ctx, "Family source directory missing", "family", family.String(), "dir", dir)
		}
		return []string{}
	}

	names := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := VariantName(entry.Name())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	return names
}

// VariantName derives a variant name from a source file name: everything
// before the first dot. Names without a dot, and dotfiles, yield "".
func VariantName(fileName string) string {
	idx := strings.Index(fileName, ".")
	if idx <= 0 {
		return ""
	}
	return fileName[:idx]
}

// Families returns the discovered families in discovery order.
func (r *VariantRegistry) Families() []Family {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return append([]Family(nil), r.order...)
}

// Variants returns every discovered variant name once, in first-appearance
// order across families.
func (r *VariantRegistry) Variants() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result []string
	seen := make(map[string]bool)
	for _, family := range r.order {
		for _, name := range r.variants[family] {
			if seen[name] {
				continue
			}
			seen[name] = true
			result = append(result, name)
		}
	}
	return result
}

// Pairs returns every (family, variant) pair in discovery order.
func (r *VariantRegistry) Pairs() []Pair {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var pairs []Pair
	for _, family := range r.order {
		for _, name := range r.variants[family] {
			pairs = append(pairs, Pair{Family: family, Variant: name})
		}
	}
	return pairs
}

// Pair is one family/variant combination to compile.
type Pair struct {
	Family  Family
	Variant string
}
