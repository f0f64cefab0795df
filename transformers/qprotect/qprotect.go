package qprotect

import (
	"maps"
	"slices"

	"github.com/chazu/scour/transform"
	"github.com/chazu/scour/transformers/clean"
)

// DefaultVersion is used when no version is configured.
const DefaultVersion = "1.2"

// versions lists the passes needed per qProtect release.
var versions = map[string][]transform.Factory{
	"1.0": {NewFieldFlow},
	"1.2": {NewFieldFlow, clean.NewUselessPop, clean.NewNop},
}

// New returns the composition for the given qProtect release. An empty
// version selects DefaultVersion.
func New(version string) transform.Factory {
	if version == "" {
		version = DefaultVersion
	}
	return transform.Versions("qprotect", version, versions)
}

// Versions returns the releases New accepts, sorted.
func Versions() []string {
	return slices.Sorted(maps.Keys(versions))
}
