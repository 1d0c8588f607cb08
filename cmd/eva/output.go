package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// colorEnabled reports whether ANSI colour should be written to f.
// NO_COLOR (https://no-color.org/) and TERM=dumb switch it off.
func colorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func paint(f *os.File, code, s string) string {
	if !colorEnabled(f) {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func red(f *os.File, s string) string   { return paint(f, "31", s) }
func green(f *os.File, s string) string { return paint(f, "32", s) }
func dim(f *os.File, s string) string   { return paint(f, "2", s) }

// reportError writes a failure line to stderr.
func reportError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, red(os.Stderr, fmt.Sprintf(format, args...)))
}
