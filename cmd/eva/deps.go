package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"eva/interpreter-go/pkg/driver"
)

func runDeps(args []string) int {
	if len(args) == 0 {
		reportError("eva deps requires a subcommand (install, update)")
		return 1
	}
	switch args[0] {
	case "install":
		if len(args) > 1 {
			reportError("eva deps install does not take arguments (received %s)", strings.Join(args[1:], " "))
			return 1
		}
		return runDepsInstall()
	case "update":
		return runDepsUpdate(args[1:])
	default:
		reportError("unknown deps subcommand %q", args[0])
		return 1
	}
}

type depsProject struct {
	manifest    *driver.Manifest
	lock        *driver.Lockfile
	lockPath    string
	lockCreated bool
	cacheDir    string
}

func openDepsProject() (*depsProject, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		reportError("failed to determine working directory: %v", err)
		return nil, false
	}
	manifestPath, err := findManifest(cwd)
	if err != nil {
		reportError("unable to locate %s: %v", driver.ManifestFileName, err)
		return nil, false
	}
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		reportError("failed to read manifest: %v", err)
		return nil, false
	}
	cacheDir, err := resolveEvaHome()
	if err != nil {
		reportError("failed to resolve EVA_HOME: %v", err)
		return nil, false
	}

	project := &depsProject{
		manifest: manifest,
		lockPath: driver.LockfilePathFor(manifest.Path),
		cacheDir: cacheDir,
	}
	lock, err := driver.LoadLockfile(project.lockPath)
	switch {
	case err == nil:
		if lock.Root != manifest.Name {
			reportError("lockfile root %q does not match manifest name %q", lock.Root, manifest.Name)
			return nil, false
		}
	case errors.Is(err, os.ErrNotExist):
		lock = driver.NewLockfile(manifest.Name, cliToolVersion)
		project.lockCreated = true
	default:
		reportError("failed to read lockfile: %v", err)
		return nil, false
	}
	lock.Path = project.lockPath
	lock.Tool = cliToolVersion
	project.lock = lock
	return project, true
}

func (p *depsProject) install() (bool, bool) {
	installer := newDependencyInstaller(p.manifest, p.cacheDir)
	changed, logs, err := installer.Install(p.lock)
	if err != nil {
		reportError("failed to resolve dependencies: %v", err)
		return false, false
	}
	for _, line := range logs {
		fmt.Fprintln(os.Stdout, line)
	}
	if !changed && !p.lockCreated {
		return false, true
	}
	if err := driver.WriteLockfile(p.lock, p.lockPath); err != nil {
		reportError("failed to write lockfile: %v", err)
		return false, false
	}
	return true, true
}

func runDepsInstall() int {
	project, ok := openDepsProject()
	if !ok {
		return 1
	}

	fmt.Fprintf(os.Stdout, "Manifest: %s\n", project.manifest.Path)
	fmt.Fprintf(os.Stdout, "Root package: %s\n", project.manifest.Name)
	fmt.Fprintf(os.Stdout, "Dependencies: %d\n", len(project.manifest.Dependencies))
	fmt.Fprintf(os.Stdout, "Cache directory: %s\n", project.cacheDir)

	wrote, ok := project.install()
	if !ok {
		return 1
	}
	switch {
	case wrote && project.lockCreated:
		fmt.Fprintf(os.Stdout, "Created %s: %s\n", driver.LockfileName, project.lockPath)
	case wrote:
		fmt.Fprintf(os.Stdout, "Updated %s: %s\n", driver.LockfileName, project.lockPath)
	default:
		fmt.Fprintf(os.Stdout, "%s already up to date: %s\n", driver.LockfileName, project.lockPath)
	}
	fmt.Fprintln(os.Stdout, green(os.Stdout, "Dependencies installed."))
	return 0
}

func runDepsUpdate(targets []string) int {
	project, ok := openDepsProject()
	if !ok {
		return 1
	}

	updateSet := make(map[string]struct{}, len(targets))
	if len(targets) > 0 {
		declared := make(map[string]struct{}, len(project.manifest.Dependencies))
		for name := range project.manifest.Dependencies {
			declared[driver.SanitizeName(name)] = struct{}{}
		}
		for _, target := range targets {
			sanitized := driver.SanitizeName(target)
			if _, ok := declared[sanitized]; !ok {
				reportError("dependency %q not declared in manifest", target)
				return 1
			}
			updateSet[sanitized] = struct{}{}
		}
	}

	// Unpinned entries are re-resolved from their manifest descriptors.
	keep := make(map[string]struct{}, len(project.lock.Packages))
	if len(updateSet) > 0 {
		for _, pkg := range project.lock.Packages {
			if pkg == nil {
				continue
			}
			if _, update := updateSet[pkg.Name]; !update {
				keep[pkg.Name] = struct{}{}
			}
		}
	}
	project.lock.Prune(keep)

	wrote, ok := project.install()
	if !ok {
		return 1
	}
	if wrote {
		fmt.Fprintf(os.Stdout, "Updated %s: %s\n", driver.LockfileName, project.lockPath)
	} else {
		fmt.Fprintln(os.Stdout, "Dependencies already up to date.")
	}
	return 0
}
