package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the MindSync ASCII art banner.
func PrintBanner() {
	p := termenv.ColorProfile()
	// Subtle gradient-like color scheme (indigo to rose)
	lines := []string{
		"  __  __ _           _ ____                    ",
		" |  \\/  (_)_ __   __| / ___| _   _ _ __   ___  ",
		" | |\\/| | | '_ \\ / _` \\___ \\| | | | '_ \\ / __| ",
		" | |  | | | | | | (_| |___) | |_| | | | | (__  ",
		" |_|  |_|_|_| |_|\\__,_|____/ \\__, |_| |_|\\___| ",
		"                             |___/             ",
	}
	colors := []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6", "#fb7185"}

	fmt.Println()
	for i, line := range lines {
		fmt.Println(termenv.String(line).Foreground(p.Color(colors[i])))
	}
	fmt.Println()
}
