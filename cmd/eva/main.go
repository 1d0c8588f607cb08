package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/driver"
	"eva/interpreter-go/pkg/interpreter"
	"eva/interpreter-go/pkg/runtime"
)

const cliToolVersion = "eva 0.1.0-dev"

var errManifestNotFound = errors.New("eva.yml not found")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "--help", "-h", "help":
		printUsage()
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return 0
	case "run":
		return runEntry(args[1:])
	case "eval":
		return runEval(args[1:])
	case "repl":
		return runRepl(args[1:])
	case "deps":
		return runDeps(args[1:])
	default:
		return runEntry(args)
	}
}

func runEntry(args []string) int {
	if len(args) > 1 {
		reportError("unexpected arguments: %s", strings.Join(args[1:], " "))
		return 1
	}

	manifest, manifestErr := loadManifestFrom(".")
	if manifestErr != nil {
		switch {
		case errors.Is(manifestErr, errManifestNotFound):
			manifest = nil
		case len(args) == 1 && looksLikePathCandidate(args[0]):
			fmt.Fprintf(os.Stderr, "warning: unable to load manifest (%v); falling back to direct file execution\n", manifestErr)
			manifest = nil
		default:
			reportError("failed to load manifest: %v", manifestErr)
			return 1
		}
	}

	if len(args) == 0 {
		if manifest == nil {
			reportError("eva run requires a manifest target or program file (eva.yml not found)")
			return 1
		}
		target, err := manifest.DefaultExecutableTarget()
		if err != nil {
			reportError("manifest error: %v", err)
			return 1
		}
		return executeTarget(manifest, target)
	}

	candidate := args[0]
	if manifest != nil {
		if target, ok := manifest.FindTarget(candidate); ok && !looksLikePathCandidate(candidate) {
			return executeTarget(manifest, target)
		}
	}

	activeManifest := manifest
	if absCandidate, err := filepath.Abs(candidate); err == nil {
		manifestPath, findErr := findManifest(filepath.Dir(absCandidate))
		switch {
		case findErr == nil:
			if activeManifest == nil || filepath.Clean(activeManifest.Path) != filepath.Clean(manifestPath) {
				m, loadErr := driver.LoadManifest(manifestPath)
				if loadErr != nil {
					reportError("failed to read manifest for %s: %v", candidate, loadErr)
					return 1
				}
				activeManifest = m
			}
		case errors.Is(findErr, errManifestNotFound):
			activeManifest = nil
		default:
			reportError("failed to locate manifest for %s: %v", candidate, findErr)
			return 1
		}
	}

	lock, err := loadLockfileForManifest(activeManifest)
	if err != nil {
		reportError("%v", err)
		return 1
	}
	return executeEntry(candidate, activeManifest, lock)
}

func executeTarget(manifest *driver.Manifest, target *driver.TargetSpec) int {
	if target.Type != driver.TargetTypeExecutable {
		reportError("target %q is a %s target and cannot be run", target.OriginalName, target.Type)
		return 1
	}
	entryPath, err := manifest.ResolveTargetMain(target)
	if err != nil {
		reportError("failed to resolve target %q: %v", target.OriginalName, err)
		return 1
	}
	lock, err := loadLockfileForManifest(manifest)
	if err != nil {
		reportError("%v", err)
		return 1
	}
	return executeEntry(entryPath, manifest, lock)
}

func executeEntry(entry string, manifest *driver.Manifest, lock *driver.Lockfile) int {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		reportError("eva run requires a program file")
		return 1
	}

	extras, err := buildExecutionSearchPaths(manifest, lock)
	if err != nil {
		reportError("failed to prepare execution environment: %v", err)
		return 1
	}
	loader, err := driver.NewLoader(collectSearchPaths(extras...))
	if err != nil {
		reportError("failed to initialize loader: %v", err)
		return 1
	}

	program, err := loader.Load(entry)
	if err != nil {
		reportError("failed to load program: %v", err)
		return 1
	}

	global := interpreter.NewGlobalEnvironment()
	manifest.DefineGlobals(global)
	interp := newInterpreter(global)

	val, err := interp.EvaluateProgram(program)
	if err != nil {
		reportError("runtime error: %v", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, runtime.Format(val))
	return 0
}

func runEval(args []string) int {
	if len(args) != 1 {
		reportError("eva eval requires exactly one expression argument")
		return 1
	}
	expr, err := ast.DecodeOne([]byte(args[0]))
	if err != nil {
		reportError("failed to parse expression: %v", err)
		return 1
	}
	interp := newInterpreter(interpreter.NewGlobalEnvironment())
	val, err := interp.Evaluate(expr, nil)
	if err != nil {
		reportError("runtime error: %v", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, runtime.Format(val))
	return 0
}

// newInterpreter wires EVA_TRACE into the interpreter's debug logger.
func newInterpreter(global *runtime.Environment) *interpreter.Interpreter {
	var logger *slog.Logger
	if traceEnabled() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return interpreter.NewWithOptions(global, interpreter.Options{Logger: logger})
}

func traceEnabled() bool {
	raw := strings.TrimSpace(os.Getenv("EVA_TRACE"))
	if raw == "" {
		return false
	}
	enabled, err := strconv.ParseBool(raw)
	return err == nil && enabled
}

// collectSearchPaths orders package roots: dependency roots first, then
// EVA_PATH entries. Missing directories are skipped.
func collectSearchPaths(extra ...string) []string {
	seen := make(map[string]struct{})
	var paths []string

	add := func(path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		paths = append(paths, abs)
	}

	for _, path := range extra {
		add(path)
	}
	for _, part := range strings.Split(os.Getenv("EVA_PATH"), string(os.PathListSeparator)) {
		add(strings.TrimSpace(part))
	}
	return paths
}

func loadManifestFrom(start string) (*driver.Manifest, error) {
	if start == "" {
		start = "."
	}
	absStart, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest search path %q: %w", start, err)
	}
	manifestPath, err := findManifest(absStart)
	if err != nil {
		return nil, err
	}
	return driver.LoadManifest(manifestPath)
}

func findManifest(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start directory %q: %w", start, err)
	}
	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	origin := dir
	for {
		candidate := filepath.Join(dir, driver.ManifestFileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found from %s upwards: %w", driver.ManifestFileName, origin, errManifestNotFound)
		}
		dir = parent
	}
}

func resolveEvaHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv("EVA_HOME")); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return "", fmt.Errorf("resolve EVA_HOME %q: %w", home, err)
		}
		return abs, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(userHome, ".eva"), nil
}

func looksLikePathCandidate(arg string) bool {
	if arg == "" {
		return false
	}
	if strings.Contains(arg, "/") || strings.Contains(arg, "\\") {
		return true
	}
	switch filepath.Ext(arg) {
	case ".eva", ".json", ".yml", ".yaml":
		return true
	}
	return strings.HasPrefix(arg, ".")
}

func loadLockfileForManifest(manifest *driver.Manifest) (*driver.Lockfile, error) {
	if manifest == nil {
		return nil, nil
	}
	lockPath := driver.LockfilePathFor(manifest.Path)
	lock, err := driver.LoadLockfile(lockPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if manifest.HasDependencies() {
				return nil, fmt.Errorf("%s missing for %q; run `eva deps install`", driver.LockfileName, manifest.Name)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lockfile %s: %w", lockPath, err)
	}
	if lock.Root != manifest.Name {
		return nil, fmt.Errorf("lockfile root %q does not match manifest name %q", lock.Root, manifest.Name)
	}
	return lock, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  eva run [target]")
	fmt.Fprintln(os.Stderr, "  eva run <file.eva>")
	fmt.Fprintln(os.Stderr, "  eva <file.eva>")
	fmt.Fprintln(os.Stderr, "  eva eval '<expression>'      e.g. '[\"+\", 1, 2]' or '\"hello\"'")
	fmt.Fprintln(os.Stderr, "  eva repl [--session path]")
	fmt.Fprintln(os.Stderr, "  eva deps install")
	fmt.Fprintln(os.Stderr, "  eva deps update [dependency ...]")
	fmt.Fprintln(os.Stderr, "  eva version")
}
