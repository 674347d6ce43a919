package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ui-morn banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct{ text, color string }{
		{"             _                              ", "#818cf8"},
		{"  _   _ (_)      _ __ ___   ___  _ __ _ __  ", "#a78bfa"},
		{" | | | || |_____| '_ ` _ \\ / _ \\| '__| '_ \\ ", "#c084fc"},
		{" | |_| || |_____| | | | | | (_) | |  | | | |", "#e879f9"},
		{"  \\__,_||_|     |_| |_| |_|\\___/|_|  |_| |_|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
