package config

// Verbosity gates the pipeline's detail logging, mirroring --log1 and --log2.
type Verbosity int

const (
	// VerbosityQuiet logs only task boundaries.
	VerbosityQuiet Verbosity = iota
	// VerbosityStages adds per-stage completion and configuration errors.
	VerbosityStages
	// VerbosityDetail adds per-variant and per-file messages.
	VerbosityDetail
)

// Enabled reports whether messages at level min should be emitted.
func (v Verbosity) Enabled(min Verbosity) bool {
	return v >= min
}

// BuildOptions is resolved once at startup and passed by value afterwards.
type BuildOptions struct {
	Production         bool
	RetainIntermediate bool
	StrictJS           bool
	LiveReload         bool
	ProxyTarget        string
	Port               int
	Verbosity          Verbosity
}

// CleanEnabled reports whether output trees are deleted before regeneration.
func (o BuildOptions) CleanEnabled() bool {
	return !o.RetainIntermediate
}

// SourceMaps reports whether source maps are emitted.
func (o BuildOptions) SourceMaps() bool {
	return !o.Production
}
