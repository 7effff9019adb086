package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// Messages go to stderr so command output (session JSON, product
// lists) stays pipeable on stdout.
func printMsg(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	printMsg(colorGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	printMsg(colorRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	printMsg(colorYellow, "⚠", format, args...)
}

func printStep(format string, args ...any) {
	printMsg(colorCyan, "→", format, args...)
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
