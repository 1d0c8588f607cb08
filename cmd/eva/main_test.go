package main

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"eva/interpreter-go/pkg/driver"
	"eva/interpreter-go/pkg/interpreter"
)

func TestFindManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, driver.ManifestFileName), "name: test")
	child := filepath.Join(root, "src", "app")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	found, err := findManifest(child)
	if err != nil {
		t.Fatalf("findManifest returned error: %v", err)
	}
	if want := filepath.Join(root, driver.ManifestFileName); found != want {
		t.Fatalf("findManifest = %q, want %q", found, want)
	}
}

func TestResolveEvaHomeEnv(t *testing.T) {
	target := filepath.Join(t.TempDir(), "cache")
	t.Setenv("EVA_HOME", target)

	got, err := resolveEvaHome()
	if err != nil {
		t.Fatalf("resolveEvaHome error: %v", err)
	}
	if got != target {
		t.Fatalf("resolveEvaHome = %q, want %q", got, target)
	}
}

func TestResolveEvaHomeDefault(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("EVA_HOME", "")
	t.Setenv("HOME", tmp)

	got, err := resolveEvaHome()
	if err != nil {
		t.Fatalf("resolveEvaHome error: %v", err)
	}
	if want := filepath.Join(tmp, ".eva"); got != want {
		t.Fatalf("resolveEvaHome = %q, want %q", got, want)
	}
}

func TestLoadLockfileForManifest_NoDepsMissingLock(t *testing.T) {
	manifest := &driver.Manifest{Path: filepath.Join(t.TempDir(), driver.ManifestFileName)}
	lock, err := loadLockfileForManifest(manifest)
	if err != nil {
		t.Fatalf("loadLockfileForManifest returned error: %v", err)
	}
	if lock != nil {
		t.Fatalf("expected nil lock when no dependencies, got %#v", lock)
	}
}

func TestLoadLockfileForManifest_WithDepsMissingLock(t *testing.T) {
	manifest := &driver.Manifest{
		Name: "demo",
		Path: filepath.Join(t.TempDir(), driver.ManifestFileName),
		Dependencies: map[string]*driver.DependencySpec{
			"util": {Path: "../util"},
		},
	}
	_, err := loadLockfileForManifest(manifest)
	if err == nil {
		t.Fatal("expected error when lockfile missing with dependencies")
	}
	if !strings.Contains(err.Error(), "eva.lock missing") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunVersionAndHelp(t *testing.T) {
	code, stdout, _ := captureCLI(t, []string{"version"})
	if code != 0 || strings.TrimSpace(stdout) != cliToolVersion {
		t.Fatalf("version = %d %q", code, stdout)
	}
	code, _, stderr := captureCLI(t, []string{"--help"})
	if code != 0 || !strings.Contains(stderr, "eva repl [--session path]") {
		t.Fatalf("help = %d %q", code, stderr)
	}
	if code, _, _ := captureCLI(t, nil); code != 1 {
		t.Fatalf("no-arg exit code = %d, want 1", code)
	}
}

func TestRunEvalPrintsValue(t *testing.T) {
	code, stdout, stderr := captureCLI(t, []string{"eval", `["begin", ["var", "x", 10], ["var", "y", 20], ["+", ["*", "x", "y"], 30]]`})
	if code != 0 {
		t.Fatalf("eval exit code = %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != "230" {
		t.Fatalf("eval stdout = %q, want 230", stdout)
	}

	for _, arg := range []string{`"\"hello\""`, `"hello"`} {
		code, stdout, _ = captureCLI(t, []string{"eval", arg})
		if code != 0 || strings.TrimSpace(stdout) != "hello" {
			t.Fatalf("eval %s = %d %q", arg, code, stdout)
		}
	}
}

func TestRunEvalReportsErrors(t *testing.T) {
	code, _, stderr := captureCLI(t, []string{"eval", `missing`})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "runtime error: Undefined variable 'missing'") {
		t.Fatalf("stderr = %q", stderr)
	}

	code, _, stderr = captureCLI(t, []string{"eval", `["foo", 1]`})
	if code != 1 || !strings.Contains(stderr, "Unimplemented") {
		t.Fatalf("unimplemented = %d %q", code, stderr)
	}

	code, _, stderr = captureCLI(t, []string{"eval", `{"a": 1}`})
	if code != 1 || !strings.Contains(stderr, "failed to parse expression") {
		t.Fatalf("decode failure = %d %q", code, stderr)
	}

	code, _, stderr = captureCLI(t, []string{"eval", `&a ["+", *a, 1]`})
	if code != 1 || !strings.Contains(stderr, "aliases are not expressions") {
		t.Fatalf("self-referencing alias = %d %q", code, stderr)
	}
}

func TestRunEntryDirectFileNoManifest(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "main.eva"), `
["var", "counter", 0]
---
["while", ["<", "counter", 10], ["set", "counter", ["+", "counter", 1]]]
---
"counter"
`)

	code, stdout, stderr := captureCLI(t, []string{"main.eva"})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != "10" {
		t.Fatalf("stdout = %q, want 10", stdout)
	}
}

func TestRunDefaultTargetUsesGlobalsAndLibraryPrelude(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, driver.ManifestFileName), `
name: demo
targets:
  app: src/main.eva
  helpers:
    type: library
    main: lib/helpers.eva
globals:
  limit: 5
`)
	writeFile(t, filepath.Join(dir, "lib", "helpers.eva"), `["var", "step", 2]`)
	writeFile(t, filepath.Join(dir, "src", "main.eva"), `["*", "limit", "step"]`)

	code, stdout, stderr := captureCLI(t, []string{"run"})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != "10" {
		t.Fatalf("stdout = %q, want 10", stdout)
	}

	code, stdout, _ = captureCLI(t, []string{"run", "app"})
	if code != 0 || strings.TrimSpace(stdout) != "10" {
		t.Fatalf("named target = %d %q", code, stdout)
	}

	code, _, stderr = captureCLI(t, []string{"run", "helpers"})
	if code != 1 || !strings.Contains(stderr, "cannot be run") {
		t.Fatalf("library target = %d %q", code, stderr)
	}
}

func TestRunReportsRuntimeErrorFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "main.eva"), `["set", "ghost", 1]`)

	code, stdout, stderr := captureCLI(t, []string{"run", "main.eva"})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if !strings.Contains(stderr, "runtime error: Undefined variable 'ghost'") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestDependencyInstaller_PathDependencyTransitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", driver.ManifestFileName), `
name: app
dependencies:
  dep:
    path: ../dep
`)
	writeFile(t, filepath.Join(root, "dep", driver.ManifestFileName), `
name: dep
version: 0.2.0
dependencies:
  base: ../base
`)
	writeFile(t, filepath.Join(root, "base", driver.ManifestFileName), `
name: base
version: 1.0.0
`)

	manifest, err := driver.LoadManifest(filepath.Join(root, "app", driver.ManifestFileName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	lock := driver.NewLockfile(manifest.Name, cliToolVersion)
	installer := newDependencyInstaller(manifest, filepath.Join(root, ".eva"))

	changed, logs, err := installer.Install(lock)
	if err != nil {
		t.Fatalf("Install returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected lockfile to change for new dependencies")
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %#v", logs)
	}
	if len(lock.Packages) != 2 {
		t.Fatalf("lock packages = %#v", lock.Packages)
	}
	base, dep := lock.Packages[0], lock.Packages[1]
	if base.Name != "base" || base.Version != "1.0.0" || base.Source != "path:"+filepath.Join(root, "base") {
		t.Fatalf("base entry unexpected: %#v", base)
	}
	if dep.Name != "dep" || dep.Version != "0.2.0" {
		t.Fatalf("dep entry unexpected: %#v", dep)
	}

	changed, _, err = newDependencyInstaller(manifest, filepath.Join(root, ".eva")).Install(lock)
	if err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if changed {
		t.Fatal("expected second install to leave the lock unchanged")
	}
}

func TestDependencyInstaller_DetectsCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", driver.ManifestFileName), `
name: app
dependencies:
  left: ../left
`)
	writeFile(t, filepath.Join(root, "left", driver.ManifestFileName), `
name: left
dependencies:
  right: ../right
`)
	writeFile(t, filepath.Join(root, "right", driver.ManifestFileName), `
name: right
dependencies:
  left: ../left
`)
	manifest, err := driver.LoadManifest(filepath.Join(root, "app", driver.ManifestFileName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	_, _, err = newDependencyInstaller(manifest, t.TempDir()).Install(driver.NewLockfile("app", cliToolVersion))
	if err == nil || !strings.Contains(err.Error(), "dependency cycle detected at left") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestDependencyInstaller_GitDependency(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	writeFile(t, filepath.Join(repo, driver.ManifestFileName), `
name: gitpkg
version: 0.3.0
targets:
  lib:
    type: library
    main: lib.eva
`)
	writeFile(t, filepath.Join(repo, "lib.eva"), `["var", "fromGit", 7]`)
	rev := initGitRepo(t, repo)

	writeFile(t, filepath.Join(root, "app", driver.ManifestFileName), `
name: app
dependencies:
  gitpkg:
    git: `+repo+`
    rev: `+rev+`
`)
	manifest, err := driver.LoadManifest(filepath.Join(root, "app", driver.ManifestFileName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	cacheDir := filepath.Join(root, "cache")
	t.Setenv("EVA_HOME", cacheDir)
	lock := driver.NewLockfile(manifest.Name, cliToolVersion)
	changed, _, err := newDependencyInstaller(manifest, cacheDir).Install(lock)
	if err != nil {
		t.Fatalf("Install error: %v", err)
	}
	if !changed || len(lock.Packages) != 1 {
		t.Fatalf("lock unexpected: changed=%v %#v", changed, lock.Packages)
	}
	pkg := lock.Packages[0]
	if pkg.Source != "git:"+repo || pkg.Revision != rev || pkg.Version != rev {
		t.Fatalf("git entry unexpected: %#v", pkg)
	}
	if !strings.HasPrefix(pkg.Checksum, "sha256:") {
		t.Fatalf("checksum = %q", pkg.Checksum)
	}
	cached := gitCheckoutDir(cacheDir, pkg.Name, pkg.Version)
	if _, err := os.Stat(filepath.Join(cached, "lib.eva")); err != nil {
		t.Fatalf("expected cached checkout at %s: %v", cached, err)
	}

	paths, err := buildExecutionSearchPaths(manifest, lock)
	if err != nil {
		t.Fatalf("buildExecutionSearchPaths: %v", err)
	}
	if !containsPath(paths, cached) || !containsPath(paths, filepath.Join(root, "app")) {
		t.Fatalf("search paths missing entries: %v", paths)
	}
}

func TestGitRevisionFromSpec(t *testing.T) {
	revs, desc, err := gitRevisionFromSpec(&driver.DependencySpec{Tag: "v1.0.0"})
	if err != nil || desc != "v1.0.0" || len(revs) != 1 || revs[0] != "refs/tags/v1.0.0" {
		t.Fatalf("tag = %v %q %v", revs, desc, err)
	}
	revs, _, err = gitRevisionFromSpec(&driver.DependencySpec{Branch: "main"})
	if err != nil || len(revs) != 2 || revs[1] != "refs/remotes/origin/main" {
		t.Fatalf("branch = %v %v", revs, err)
	}
	if _, _, err := gitRevisionFromSpec(&driver.DependencySpec{}); err == nil {
		t.Fatal("expected error without rev, tag, or branch")
	}
	if got := gitPinnedVersion("main", "abc"); got != "main@abc" {
		t.Fatalf("gitPinnedVersion = %q", got)
	}
}

func TestDepsInstallAndRunWithPathDependency(t *testing.T) {
	root := t.TempDir()
	t.Setenv("EVA_HOME", filepath.Join(root, ".eva"))
	writeFile(t, filepath.Join(root, "shared", driver.ManifestFileName), `
name: shared
version: 0.1.0
targets:
  prelude:
    type: library
    main: prelude.eva
`)
	writeFile(t, filepath.Join(root, "shared", "prelude.eva"), `["var", "base", 100]`)

	appDir := filepath.Join(root, "app")
	writeFile(t, filepath.Join(appDir, driver.ManifestFileName), `
name: app
targets:
  main: main.eva
dependencies:
  shared: ../shared
`)
	writeFile(t, filepath.Join(appDir, "main.eva"), `["+", "base", 1]`)
	chdir(t, appDir)

	code, _, stderr := captureCLI(t, []string{"run"})
	if code != 1 || !strings.Contains(stderr, "eva.lock missing") {
		t.Fatalf("run before install = %d %q", code, stderr)
	}

	code, stdout, stderr := captureCLI(t, []string{"deps", "install"})
	if code != 0 {
		t.Fatalf("deps install = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "Created eva.lock") || !strings.Contains(stdout, "linked shared 0.1.0") {
		t.Fatalf("deps install stdout = %q", stdout)
	}
	lock, err := driver.LoadLockfile(filepath.Join(appDir, driver.LockfileName))
	if err != nil {
		t.Fatalf("LoadLockfile: %v", err)
	}
	if _, ok := lock.Package("shared"); !ok {
		t.Fatalf("lock missing shared: %#v", lock.Packages)
	}

	code, stdout, _ = captureCLI(t, []string{"deps", "install"})
	if code != 0 || !strings.Contains(stdout, "already up to date") {
		t.Fatalf("second install = %d %q", code, stdout)
	}

	code, stdout, stderr = captureCLI(t, []string{"run"})
	if code != 0 {
		t.Fatalf("run = %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != "101" {
		t.Fatalf("run stdout = %q, want 101", stdout)
	}

	code, stdout, _ = captureCLI(t, []string{"deps", "update", "shared"})
	if code != 0 || !strings.Contains(stdout, "Updated eva.lock") {
		t.Fatalf("deps update = %d %q", code, stdout)
	}
	code, _, stderr = captureCLI(t, []string{"deps", "update", "nope"})
	if code != 1 || !strings.Contains(stderr, `dependency "nope" not declared`) {
		t.Fatalf("update unknown = %d %q", code, stderr)
	}
}

func TestReplSessionHandle(t *testing.T) {
	repl := newReplSession(interpreter.NewGlobalEnvironment())

	cases := []struct {
		input string
		want  string
	}{
		{`["var", "x", 10]`, "10"},
		{`["set", "x", ["+", "x", 5]]`, "15"},
		{`"\"hi\""`, `"hi"`},
		{`"plain"`, `"plain"`},
		{`[">", "x", 3]`, "true"},
		{"   ", ""},
	}
	for _, tc := range cases {
		out, quit, err := repl.handle(tc.input)
		if err != nil || quit {
			t.Fatalf("handle(%q) = %q, %v, %v", tc.input, out, quit, err)
		}
		if out != tc.want {
			t.Fatalf("handle(%q) = %q, want %q", tc.input, out, tc.want)
		}
	}

	out, _, err := repl.handle(":env")
	if err != nil || !strings.Contains(out, "x = 15") || !strings.Contains(out, "true = true") {
		t.Fatalf(":env = %q, %v", out, err)
	}
	if _, _, err := repl.handle(`nope`); err == nil {
		t.Fatal("expected unresolved variable error")
	}
	if _, _, err := repl.handle(`&a ["+", *a, 1]`); err == nil {
		t.Fatal("expected alias rejection")
	}
	if _, _, err := repl.handle(":bogus"); err == nil {
		t.Fatal("expected unknown command error")
	}
	if _, quit, _ := repl.handle(":quit"); !quit {
		t.Fatal("expected :quit to end the session")
	}
}

func TestNeedsContinuation(t *testing.T) {
	cases := map[string]bool{
		`["+", 1`:               true,
		`["+", 1, 2]`:           false,
		`["var", "s", "\"]`:     true,
		`"\"a]\""`:              false,
		`["begin", ["var", "x"`: true,
		`:env`:                  false,
	}
	for input, want := range cases {
		if got := needsContinuation(input); got != want {
			t.Fatalf("needsContinuation(%q) = %v, want %v", input, got, want)
		}
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldWD); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

func containsPath(paths []string, target string) bool {
	for _, path := range paths {
		if path == target {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func initGitRepo(t *testing.T, dir string) string {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == filepath.Join(dir, ".git") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		_, err = worktree.Add(filepath.ToSlash(rel))
		return err
	}); err != nil {
		t.Fatalf("stage files: %v", err)
	}
	hash, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "eva",
			Email: "eva@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

func captureCLI(t *testing.T, args []string) (int, string, string) {
	t.Helper()

	stdout := os.Stdout
	stderr := os.Stderr

	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	rErr, wErr, err := os.Pipe()
	if err != nil {
		t.Fatalf("stderr pipe: %v", err)
	}

	os.Stdout = wOut
	os.Stderr = wErr

	code := run(args)

	if err := wOut.Close(); err != nil {
		t.Fatalf("stdout close: %v", err)
	}
	if err := wErr.Close(); err != nil {
		t.Fatalf("stderr close: %v", err)
	}

	os.Stdout = stdout
	os.Stderr = stderr

	outBytes, err := io.ReadAll(rOut)
	if err != nil {
		t.Fatalf("stdout read: %v", err)
	}
	errBytes, err := io.ReadAll(rErr)
	if err != nil {
		t.Fatalf("stderr read: %v", err)
	}
	_ = rOut.Close()
	_ = rErr.Close()

	return code, string(outBytes), string(errBytes)
}
