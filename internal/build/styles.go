package build

import (
	"context"

	"github.com/websites-starter/wsbuild/internal/registry"
)

// Styles discovers the variants of every enabled family, compiles each
// (family, variant) pair, merges each distinct variant once and finally
// drops the scratch tree unless outputs are retained.
func (b *Builder) Styles(ctx context.Context) error {
	_, err := b.StylesWithRegistry(ctx, b.NewRegistry())
	return err
}

// StylesWithRegistry runs the styles stage against reg and returns the
// stylesheets written.
func (b *Builder) StylesWithRegistry(ctx context.Context, reg *registry.VariantRegistry) ([]*Stylesheet, error) {
	for _, family := range b.families {
		reg.Discover(ctx, family)
	}

	for _, pair := range reg.Pairs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := b.CompileVariant(ctx, pair.Family, pair.Variant); err != nil {
			return nil, err
		}
	}
	b.stageDone(ctx, "Finished - all variants compiled")

	var sheets []*Stylesheet
	for _, variant := range reg.Variants() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet, err := b.MergeVariant(ctx, variant)
		if err != nil {
			return nil, err
		}
		if sheet != nil {
			sheets = append(sheets, sheet)
		}
	}
	b.stageDone(ctx, "Finished - All variants are concatenated", "stylesheets", len(sheets))

	if err := b.CleanIntermediates(ctx); err != nil {
		return nil, err
	}

	b.logger.Info(ctx, "Styles built", "variants", len(reg.Variants()), "stylesheets", len(sheets))

	return sheets, nil
}
