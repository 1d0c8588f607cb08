package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/interpreter"
	"eva/interpreter-go/pkg/runtime"
	"eva/interpreter-go/pkg/session"
)

const (
	promptMain  = "eva> "
	promptCont  = "...> "
	historyFile = "repl_history"
)

// replSession evaluates REPL input against one persistent global
// environment.
type replSession struct {
	interp *interpreter.Interpreter
	global *runtime.Environment
}

func newReplSession(global *runtime.Environment) *replSession {
	return &replSession{interp: newInterpreter(global), global: global}
}

// handle evaluates one complete input and returns the text to print.
// quit is set for :quit.
func (r *replSession) handle(src string) (out string, quit bool, err error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return "", false, nil
	}
	if strings.HasPrefix(trimmed, ":") {
		switch strings.ToLower(trimmed) {
		case ":quit", ":q", ":exit":
			return "", true, nil
		case ":env":
			return r.describeEnv(), false, nil
		case ":help":
			return "commands: :env lists global bindings, :quit exits", false, nil
		default:
			return "", false, fmt.Errorf("unknown command %s (try :help)", trimmed)
		}
	}

	exprs, err := ast.DecodeInline([]byte(src))
	if err != nil {
		return "", false, err
	}
	val, err := r.interp.EvaluateExpressions(exprs)
	if err != nil {
		return "", false, err
	}
	return runtime.Inspect(val), false, nil
}

func (r *replSession) describeEnv() string {
	keys := r.global.Keys()
	lines := make([]string, 0, len(keys))
	for _, name := range keys {
		val, err := r.global.Get(name)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s = %s", name, runtime.Inspect(val)))
	}
	return strings.Join(lines, "\n")
}

// needsContinuation reports whether src has an unclosed bracket or string.
func needsContinuation(src string) bool {
	depth := 0
	inString := false
	escaped := false
	for _, r := range src {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
		}
	}
	return inString || depth > 0
}

func runRepl(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	sessionPath := fs.String("session", "", "persist global bindings in this sqlite file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		reportError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		return 1
	}

	ctx := context.Background()
	global := interpreter.NewGlobalEnvironment()
	if manifest, err := loadManifestFrom("."); err == nil {
		manifest.DefineGlobals(global)
	} else if !errors.Is(err, errManifestNotFound) {
		fmt.Fprintf(os.Stderr, "warning: ignoring manifest: %v\n", err)
	}

	var store *session.Store
	if *sessionPath != "" {
		var err error
		store, err = session.Open(*sessionPath)
		if err != nil {
			reportError("%v", err)
			return 1
		}
		defer store.Close()
		n, err := store.Restore(ctx, global)
		if err != nil {
			reportError("%v", err)
			return 1
		}
		if n > 0 {
			fmt.Fprintln(os.Stdout, dim(os.Stdout, fmt.Sprintf("restored %d bindings from %s", n, store.Path())))
		}
	}

	repl := newReplSession(global)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := ""
	if home, err := resolveEvaHome(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}

	for {
		src, ok := readBalanced(ln)
		if !ok {
			fmt.Fprintln(os.Stdout)
			break
		}
		out, quit, err := repl.handle(src)
		if quit {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red(os.Stderr, err.Error()))
			continue
		}
		if strings.TrimSpace(src) != "" {
			ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		}
		if out != "" {
			fmt.Fprintln(os.Stdout, green(os.Stdout, out))
		}
	}

	if histPath != "" {
		if err := os.MkdirAll(filepath.Dir(histPath), 0o755); err == nil {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}
	}
	if store != nil {
		if err := store.Save(ctx, global); err != nil {
			reportError("%v", err)
			return 1
		}
	}
	return 0
}

// readBalanced keeps prompting until brackets and strings are closed.
func readBalanced(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !needsContinuation(b.String()) {
			return b.String(), true
		}
	}
}
