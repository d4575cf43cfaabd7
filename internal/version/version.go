package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/seawire/vela/theme"
)

var (
	Name        = "vela"
	Authors     = "Seawire Labs"
	Description = "Session-backed Claude relay"
	Version     = "v0.3.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/seawire/vela"
	GithubHomeUri   = "https://github.com/seawire/vela"
	GithubLatestUri = "https://github.com/seawire/vela/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔═══════════════════════════════════════════════╗
│  ██╗   ██╗███████╗██╗      █████╗             │
│  ██║   ██║██╔════╝██║     ██╔══██╗            │
│  ██║   ██║█████╗  ██║     ███████║     ⛵     │
│  ╚██╗ ██╔╝██╔══╝  ██║     ██╔══██║            │
│   ╚████╔╝ ███████╗███████╗██║  ██║            │
│    ╚═══╝  ╚══════╝╚══════╝╚═╝  ╚═╝            │` + "\n"))

	b.WriteString(theme.ColourSplash("│  "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString("  ")
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(theme.ColourSplash("           │\n"))
	b.WriteString(theme.ColourSplash("╚═══════════════════════════════════════════════╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
