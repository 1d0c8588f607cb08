package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"eva/interpreter-go/pkg/driver"
)

type resolvedPackage struct {
	pkg      *driver.LockedPackage
	manifest *driver.Manifest
	root     string
}

type dependencyInstaller struct {
	manifest     *driver.Manifest
	manifestRoot string
	cacheDir     string
	logs         []string
	git          *gitFetcher
	locked       map[string]*driver.LockedPackage
	resolved     map[string]*driver.LockedPackage
	resolving    map[string]bool
}

func newDependencyInstaller(manifest *driver.Manifest, cacheDir string) *dependencyInstaller {
	var root string
	if manifest != nil {
		root = filepath.Dir(manifest.Path)
	}
	return &dependencyInstaller{
		manifest:     manifest,
		manifestRoot: root,
		cacheDir:     cacheDir,
		logs:         []string{},
		git:          newGitFetcher(cacheDir),
		locked:       make(map[string]*driver.LockedPackage),
		resolved:     make(map[string]*driver.LockedPackage),
		resolving:    make(map[string]bool),
	}
}

// Install resolves every non-optional dependency reachable from the
// manifest, reusing git revisions already pinned in lock. It reports
// whether the lock contents changed.
func (d *dependencyInstaller) Install(lock *driver.Lockfile) (bool, []string, error) {
	if d.manifest == nil || lock == nil {
		return false, d.logs, nil
	}

	d.locked = make(map[string]*driver.LockedPackage, len(lock.Packages))
	for _, pkg := range lock.Packages {
		if pkg != nil {
			d.locked[pkg.Name] = pkg
		}
	}
	d.resolved = make(map[string]*driver.LockedPackage)
	d.resolving = make(map[string]bool)

	names := make([]string, 0, len(d.manifest.Dependencies))
	for name, spec := range d.manifest.Dependencies {
		if spec != nil && spec.Optional {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := d.manifest.Dependencies[name]
		if spec == nil {
			return false, d.logs, fmt.Errorf("dependency %q has no descriptor", name)
		}
		if err := d.installDependency(name, spec.Clone(), d.manifestRoot); err != nil {
			return false, d.logs, err
		}
	}

	changed := len(d.resolved) != len(d.locked)
	keep := make(map[string]struct{}, len(d.resolved))
	for name, pkg := range d.resolved {
		if !lockedPackageEqual(d.locked[name], pkg) {
			changed = true
		}
		lock.Upsert(pkg)
		keep[name] = struct{}{}
	}
	lock.Prune(keep)
	return changed, d.logs, nil
}

func (d *dependencyInstaller) installDependency(name string, spec *driver.DependencySpec, base string) error {
	alias := driver.SanitizeName(name)
	if _, done := d.resolved[alias]; done {
		return nil
	}
	if d.resolving[alias] {
		return fmt.Errorf("dependency cycle detected at %s", alias)
	}
	d.resolving[alias] = true
	defer delete(d.resolving, alias)

	resolved, err := d.resolveDependency(name, spec, base)
	if err != nil {
		return err
	}

	if resolved.manifest != nil {
		childNames := make([]string, 0, len(resolved.manifest.Dependencies))
		for childName, childSpec := range resolved.manifest.Dependencies {
			if childSpec == nil || childSpec.Optional {
				continue
			}
			childNames = append(childNames, childName)
		}
		sort.Strings(childNames)
		for _, childName := range childNames {
			childSpec := resolved.manifest.Dependencies[childName].Clone()
			if err := d.installDependency(childName, childSpec, resolved.root); err != nil {
				return fmt.Errorf("%s: %w", alias, err)
			}
		}
	}

	d.resolved[alias] = resolved.pkg
	return nil
}

func (d *dependencyInstaller) resolveDependency(name string, spec *driver.DependencySpec, base string) (*resolvedPackage, error) {
	switch {
	case spec.Path != "":
		return d.resolvePathDependency(name, spec, base)
	case spec.Git != "":
		return d.resolveGitDependency(name, spec)
	default:
		return nil, fmt.Errorf("dependency %q: unsupported descriptor", name)
	}
}

func (d *dependencyInstaller) resolvePathDependency(name string, spec *driver.DependencySpec, base string) (*resolvedPackage, error) {
	pathSpec := filepath.FromSlash(spec.Path)
	if !filepath.IsAbs(pathSpec) {
		pathSpec = filepath.Join(base, pathSpec)
	}
	abs, err := filepath.Abs(pathSpec)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: resolve path %q: %w", name, spec.Path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: stat %s: %w", name, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dependency %q: expected directory at %s", name, abs)
	}

	manifestPath := filepath.Join(abs, driver.ManifestFileName)
	depManifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: load manifest %s: %w", name, manifestPath, err)
	}
	version := strings.TrimSpace(depManifest.Version)
	if version == "" {
		version = "0.0.0-dev"
	}

	d.logs = append(d.logs, fmt.Sprintf("linked %s %s (%s)", driver.SanitizeName(name), version, d.displayPath(abs)))
	return &resolvedPackage{
		pkg: &driver.LockedPackage{
			Name:    driver.SanitizeName(name),
			Version: version,
			Source:  "path:" + abs,
		},
		manifest: depManifest,
		root:     abs,
	}, nil
}

func (d *dependencyInstaller) resolveGitDependency(name string, spec *driver.DependencySpec) (*resolvedPackage, error) {
	if d.git == nil {
		return nil, fmt.Errorf("dependency %q: git support unavailable", name)
	}
	alias := driver.SanitizeName(name)
	source := "git:" + strings.TrimSpace(spec.Git)

	if locked, ok := d.locked[alias]; ok && locked.Source == source && locked.Revision != "" {
		dir := d.git.checkoutDir(alias, locked.Version)
		if _, err := os.Stat(dir); err == nil {
			d.logs = append(d.logs, fmt.Sprintf("using locked %s (%s)", alias, locked.Version))
			pinned := *locked
			return d.gitPackage(name, &pinned, dir)
		}
		spec = spec.Clone()
		spec.Rev, spec.Tag, spec.Branch = locked.Revision, "", ""
	}

	pkg, dir, err := d.git.Fetch(name, spec)
	if err != nil {
		return nil, err
	}
	d.logs = append(d.logs, fmt.Sprintf("fetched git dependency %s (%s)", pkg.Name, pkg.Version))
	return d.gitPackage(name, pkg, dir)
}

// gitPackage attaches the checkout's manifest, when it has one, so its own
// dependencies are installed too.
func (d *dependencyInstaller) gitPackage(name string, pkg *driver.LockedPackage, dir string) (*resolvedPackage, error) {
	manifestPath := filepath.Join(dir, driver.ManifestFileName)
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			manifest = nil
		} else {
			return nil, fmt.Errorf("dependency %q: load manifest %s: %w", name, manifestPath, err)
		}
	}
	return &resolvedPackage{pkg: pkg, manifest: manifest, root: dir}, nil
}

func (d *dependencyInstaller) displayPath(path string) string {
	if d.manifestRoot != "" {
		if rel, err := filepath.Rel(d.manifestRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

func lockedPackageEqual(a, b *driver.LockedPackage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// buildExecutionSearchPaths lists the package roots whose library targets
// become preludes: every locked dependency, then the project itself.
func buildExecutionSearchPaths(manifest *driver.Manifest, lock *driver.Lockfile) ([]string, error) {
	var manifestRoot string
	if manifest != nil {
		manifestRoot = filepath.Dir(manifest.Path)
	}
	var paths []string
	if lock != nil && len(lock.Packages) > 0 {
		cacheDir, err := resolveEvaHome()
		if err != nil {
			return nil, err
		}
		for _, pkg := range lock.Packages {
			if pkg == nil {
				continue
			}
			if resolved, ok := resolvePackageSourcePath(pkg, manifestRoot, cacheDir); ok {
				paths = append(paths, resolved)
			}
		}
	}
	if manifestRoot != "" {
		paths = append(paths, manifestRoot)
	}
	return paths, nil
}

func resolvePackageSourcePath(pkg *driver.LockedPackage, manifestRoot, cacheDir string) (string, bool) {
	source := strings.TrimSpace(pkg.Source)
	switch {
	case strings.HasPrefix(source, "path:"):
		pathSpec := strings.TrimSpace(strings.TrimPrefix(source, "path:"))
		if pathSpec == "" {
			return "", false
		}
		if filepath.IsAbs(pathSpec) {
			return filepath.Clean(pathSpec), true
		}
		return filepath.Join(manifestRoot, filepath.FromSlash(pathSpec)), true
	case strings.HasPrefix(source, "git:"):
		if pkg.Name == "" || pkg.Version == "" {
			return "", false
		}
		return gitCheckoutDir(cacheDir, pkg.Name, pkg.Version), true
	default:
		return "", false
	}
}
