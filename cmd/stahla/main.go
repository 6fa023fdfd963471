package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A local .env is optional; real deployments set the environment
	// directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
