package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var printedBanner bool

// PrintBanner prints the startup banner once per process, unless
// FAULTLINE_NO_BANNER=1 is set (teacher idiom: banner.go).
func PrintBanner() {
	if printedBanner {
		return
	}
	if strings.TrimSpace(os.Getenv("FAULTLINE_NO_BANNER")) == "1" {
		return
	}

	blue := color.New(color.FgCyan, color.Bold)
	tip := color.New(color.FgHiBlack)
	title := color.New(color.FgWhite, color.Bold)

	banner := []string{
		"███████╗ █████╗ ██╗   ██╗██╗  ████████╗██╗     ██╗███╗   ██╗███████╗",
		"██╔════╝██╔══██╗██║   ██║██║  ╚══██╔══╝██║     ██║████╗  ██║██╔════╝",
		"█████╗  ███████║██║   ██║██║     ██║   ██║     ██║██╔██╗ ██║█████╗  ",
		"██╔══╝  ██╔══██║██║   ██║██║     ██║   ██║     ██║██║╚██╗██║██╔══╝  ",
		"██║     ██║  ██║╚██████╔╝███████╗██║   ███████╗██║██║ ╚████║███████╗",
		"╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝   ╚══════╝╚═╝╚═╝  ╚═══╝╚══════╝",
	}

	fmt.Println()
	for _, line := range banner {
		blue.Println(line)
	}

	fmt.Println()
	title.Println("> FaultLine — transparent TCP proxy for network fault injection")
	tip.Println("\nTips:")
	tip.Println("  1. faultline serve --dest-ip ... --dest-port ...   # Run the proxy")
	tip.Println("  2. faultline serve --wizard                        # Prompt for settings interactively")
	tip.Println("  3. faultline config validate --config proxy.yaml   # Check a policy file")
	tip.Println("  4. Use --help on any command                       # More options and examples")
	fmt.Println()

	printedBanner = true
}
