package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/keygate/keygate/internal/store"
)

func main() {
	ctx := context.Background()

	// Read connection string from env or args
	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is not set (pass it as env var or first argument)")
	}

	storage, err := store.Open(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer storage.Close()

	fmt.Println("Connected to storage backend")

	if err := storage.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	fmt.Println("Schema initialized successfully")
}
