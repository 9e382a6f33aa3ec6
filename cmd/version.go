package cmd

import (
	"fmt"
	"os"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func runVersion() {
	fmt.Printf("Filmdesk %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	if key := os.Getenv("GEMINI_API_KEY"); key != "" && len(key) > 8 {
		fmt.Printf("GEMINI_API_KEY: %s...%s (configured)\n", key[:4], key[len(key)-4:])
	} else {
		fmt.Println("GEMINI_API_KEY: Not set")
	}
}
