package transform

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrUnknownVersion is returned by a versioned composition asked for a
// version it does not know.
var ErrUnknownVersion = errors.New("unknown version")

type composed struct {
	Base
	name      string
	factories []Factory
}

func (c *composed) Name() string { return c.name }

func (c *composed) Transform() error {
	return runAll(&c.Base, c.factories)
}

// Compose returns a factory for a transformer that runs each factory in
// order over its scope. Every sub-transformer sees the edits of those
// before it. The first failure stops the sequence and is returned unchanged.
func Compose(name string, factories ...Factory) Factory {
	factories = slices.Clone(factories)
	return func() Transformer {
		return &composed{name: name, factories: factories}
	}
}

type versioned struct {
	Base
	name     string
	version  string
	versions map[string][]Factory
}

func (v *versioned) Name() string { return v.name }

func (v *versioned) Transform() error {
	factories, ok := v.versions[v.version]
	if !ok {
		known := slices.Sorted(maps.Keys(v.versions))
		return fmt.Errorf("%w: %q for %s (known: %s)", ErrUnknownVersion, v.version, v.name, strings.Join(known, ", "))
	}
	v.log.Debugf("running version %s", v.version)
	return runAll(&v.Base, factories)
}

// Versions returns a factory for a composition whose sequence is picked
// from versions by version. An unknown version fails before anything runs.
func Versions(name, version string, versions map[string][]Factory) Factory {
	versions = maps.Clone(versions)
	return func() Transformer {
		return &versioned{name: name, version: version, versions: versions}
	}
}

func runAll(b *Base, factories []Factory) error {
	for _, f := range factories {
		if _, err := b.Run(f); err != nil {
			return err
		}
	}
	return nil
}
