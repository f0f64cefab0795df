package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/scour/pkg/bytecode"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor":
		return FormatCBOR, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// ReadFile decodes the bundle at path.
func ReadFile(path string) ([]*bytecode.Class, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	classes, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return classes, nil
}

// WriteFile encodes classes to path, picking the format from its extension.
func WriteFile(path string, classes []*bytecode.Class) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Encode(classes, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("corpus: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("corpus: %w", err)
	}
	return nil
}

// Files expands paths into bundle files. Directories contribute the bundles
// directly inside them, in name order.
func Files(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("corpus: %w", err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("corpus: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, err := FormatOf(e.Name()); err == nil {
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	return out, nil
}

// Source records which file a class was read from.
type Source map[*bytecode.Class]string

// LoadPool reads every bundle under paths into one class pool.
func LoadPool(paths ...string) (*bytecode.ClassPool, Source, error) {
	files, err := Files(paths...)
	if err != nil {
		return nil, nil, err
	}
	pool, _ := bytecode.NewClassPool()
	src := make(Source)
	for _, f := range files {
		classes, err := ReadFile(f)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range classes {
			if err := pool.Add(c); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", f, err)
			}
			src[c] = f
		}
	}
	return pool, src, nil
}

// WritePool writes the classes of pool to dir, one bundle per input file,
// keeping input base names and replacing the extension to match format.
func WritePool(dir string, format Format, pool *bytecode.ClassPool, src Source) ([]string, error) {
	byFile := make(map[string][]*bytecode.Class)
	var order []string
	for _, c := range pool.Classes() {
		name := src[c]
		if name == "" {
			name = "classes"
		}
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)) + "." + string(format)
		if _, seen := byFile[base]; !seen {
			order = append(order, base)
		}
		byFile[base] = append(byFile[base], c)
	}

	var written []string
	for _, base := range order {
		path := filepath.Join(dir, base)
		if err := WriteFile(path, byFile[base]); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
