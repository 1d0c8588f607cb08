package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"eva/interpreter-go/pkg/ast"
)

// Module is one decoded program file.
type Module struct {
	Path        string
	Package     string
	Expressions []ast.Expression
}

// Program contains the entry module and the prelude modules that run
// before it, in search-path order.
type Program struct {
	Entry    *Module
	Preludes []*Module
}

// Loader resolves an entry file plus the library preludes contributed by
// its package roots.
type Loader struct {
	searchPaths []string
}

// NewLoader constructs a loader over package roots. Empty and duplicate
// roots are dropped.
func NewLoader(packageRoots []string) (*Loader, error) {
	unique := make([]string, 0, len(packageRoots))
	seen := make(map[string]struct{}, len(packageRoots))
	for _, root := range packageRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("loader: resolve search path %q: %w", root, err)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		unique = append(unique, abs)
	}
	return &Loader{searchPaths: unique}, nil
}

// SearchPaths returns the normalised package roots.
func (l *Loader) SearchPaths() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.searchPaths...)
}

// Load decodes entry and every library prelude reachable from the search
// paths. A root without eva.yml, or whose manifest has no library target,
// contributes nothing.
func (l *Loader) Load(entry string) (*Program, error) {
	if l == nil {
		return nil, fmt.Errorf("loader: nil loader")
	}
	if entry == "" {
		return nil, fmt.Errorf("loader: empty entry path")
	}
	entryModule, err := LoadModule(entry)
	if err != nil {
		return nil, err
	}

	program := &Program{Entry: entryModule}
	loaded := map[string]struct{}{entryModule.Path: {}}
	for _, root := range l.searchPaths {
		mod, err := loadPrelude(root)
		if err != nil {
			return nil, err
		}
		if mod == nil {
			continue
		}
		if _, ok := loaded[mod.Path]; ok {
			continue
		}
		loaded[mod.Path] = struct{}{}
		program.Preludes = append(program.Preludes, mod)
	}
	return program, nil
}

func loadPrelude(root string) (*Module, error) {
	manifestPath := filepath.Join(root, ManifestFileName)
	if _, err := os.Stat(manifestPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("loader: stat %s: %w", manifestPath, err)
	}
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("loader: package root %s: %w", root, err)
	}
	target, err := manifest.LibraryTarget()
	if err != nil {
		if errors.Is(err, ErrNoLibraryTarget) {
			return nil, nil
		}
		return nil, err
	}
	mainPath, err := manifest.ResolveTargetMain(target)
	if err != nil {
		return nil, fmt.Errorf("loader: package %s: %w", manifest.Name, err)
	}
	mod, err := LoadModule(mainPath)
	if err != nil {
		return nil, err
	}
	mod.Package = manifest.Name
	return mod, nil
}

// LoadModule decodes a single program file. Its package defaults to the
// sanitised name of the containing directory.
func LoadModule(path string) (*Module, error) {
	if path == "" {
		return nil, fmt.Errorf("loader: empty module path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("loader: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("loader: stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("loader: module path %s is a directory", abs)
	}
	exprs, err := ast.DecodeFile(abs)
	if err != nil {
		return nil, err
	}
	return &Module{
		Path:        abs,
		Package:     sanitizeSegment(filepath.Base(filepath.Dir(abs))),
		Expressions: exprs,
	}, nil
}
