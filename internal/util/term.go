package util

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

/*
   references:
   - https://no-color.org/
*/

// IsTerminal checks if stdout is a terminal using go-isatty
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// ShouldUseColors determines if coloured output should be used
func ShouldUseColors() bool {
	if noColor := os.Getenv("NO_COLOR"); noColor != "" {
		return false
	}

	if forceColor := os.Getenv("FORCE_COLOR"); forceColor != "" {
		return forceColor != "0"
	}

	if velaColors := os.Getenv("VELA_FORCE_COLORS"); velaColors != "" {
		return strings.ToLower(velaColors) == "true"
	}

	return IsTerminal()
}
