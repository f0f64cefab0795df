// Package transformers maps transformer names used in configuration to
// their factories and assembles pipelines from them.
package transformers

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/chazu/scour/transform"
	"github.com/chazu/scour/transformers/clean"
	"github.com/chazu/scour/transformers/qprotect"
)

var (
	ErrUnknownTransformer = errors.New("unknown transformer")
	ErrUnknownObfuscator  = errors.New("unknown obfuscator")
)

var registry = map[string]transform.Factory{
	"expand-dups":         clean.NewExpandDups,
	"useless-pop":         clean.NewUselessPop,
	"nop":                 clean.NewNop,
	"qprotect-field-flow": qprotect.NewFieldFlow,
}

var obfuscators = map[string]func(version string) transform.Factory{
	"qprotect": qprotect.New,
}

// DefaultNames is the cleanup run when no transformers are configured.
var DefaultNames = []string{"nop", "useless-pop"}

// Lookup returns the factory registered under name.
func Lookup(name string) (transform.Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns the registered transformer names, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Obfuscators returns the obfuscator names Pipeline accepts, sorted.
func Obfuscators() []string {
	return slices.Sorted(maps.Keys(obfuscators))
}

// Pipeline composes the obfuscator-specific passes, if obfuscator is set,
// followed by the named transformers in order. An empty names list means
// DefaultNames.
func Pipeline(obfuscator, version string, names []string) (transform.Factory, error) {
	var factories []transform.Factory
	if obfuscator != "" {
		mk, ok := obfuscators[obfuscator]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownObfuscator, obfuscator, strings.Join(Obfuscators(), ", "))
		}
		factories = append(factories, mk(version))
	}

	if len(names) == 0 {
		names = DefaultNames
	}
	for _, name := range names {
		f, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownTransformer, name, strings.Join(Names(), ", "))
		}
		factories = append(factories, f)
	}
	return transform.Compose("pipeline", factories...), nil
}
