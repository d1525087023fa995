package main

import (
	"fmt"
	"os"

	"github.com/arnavshah/odp-scheduler-go/pkg/auth"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: keygen <clientID>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if cfg.APIMasterSecret == "" {
		fmt.Println("Error: API_MASTER_SECRET not found in .env or environment")
		os.Exit(1)
	}

	clientID := os.Args[1]
	apiKey := auth.NewService(cfg).GenerateHMACKey(clientID)
	fmt.Printf("Generated Key for %s:\n%s\n", clientID, apiKey)
}
