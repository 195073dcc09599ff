package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ANSI color codes (constants)
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
)

var (
	colorsEnabled = true

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func init() {
	// Disable colors if NO_COLOR env var is set or output is not a terminal
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
	}
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		colorsEnabled = false
	}
}

// Color helper functions
func colorize(color, text string) string {
	if !colorsEnabled {
		return text
	}
	return color + text + ansiReset
}

func colorRed(text string) string    { return colorize(ansiRed, text) }
func colorGreen(text string) string  { return colorize(ansiGreen, text) }
func colorYellow(text string) string { return colorize(ansiYellow, text) }
func colorBlue(text string) string   { return colorize(ansiBlue, text) }
func colorCyan(text string) string   { return colorize(ansiCyan, text) }
func colorBold(text string) string   { return colorize(ansiBold, text) }
func colorDim(text string) string    { return colorize(ansiDim, text) }

// Output helpers
func printSuccess(message string) {
	fmt.Fprintln(stdout, colorGreen("✓")+" "+message)
}

func printError(message string) {
	fmt.Fprintln(stderr, colorRed("✗")+" "+message)
}

func printWarning(message string) {
	fmt.Fprintln(stdout, colorYellow("⚠")+" "+message)
}

func printInfo(message string) {
	fmt.Fprintln(stdout, colorBlue("ℹ")+" "+message)
}

func printHeader(title string) {
	fmt.Fprintln(stdout, "\n"+colorBold(colorCyan(title)))
	fmt.Fprintln(stdout, colorDim("────────────────────────────────────────"))
}

func printTable(headers []string, rows [][]string) {
	// Widths count runes of the plain text; colors are applied after padding
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", w-utf8.RuneCountInString(s))
	}

	for i, h := range headers {
		fmt.Fprint(stdout, colorBold(pad(h, widths[i]))+"  ")
	}
	fmt.Fprintln(stdout)

	for _, w := range widths {
		fmt.Fprint(stdout, strings.Repeat("─", w)+"  ")
	}
	fmt.Fprintln(stdout)

	for _, row := range rows {
		for i, cell := range row {
			fmt.Fprint(stdout, pad(cell, widths[i])+"  ")
		}
		fmt.Fprintln(stdout)
	}
}
