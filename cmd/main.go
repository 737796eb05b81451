package main

import (
	"fmt"
	"os"

	"github.com/ridgeline-labs/review-orchestrator/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	port := a.Cfg.Port
	fmt.Printf("server listening on :%s\n", port)
	if err := a.Run(":" + port); err != nil {
		a.Log.Warn("server failed", "error", err)
	}
}
