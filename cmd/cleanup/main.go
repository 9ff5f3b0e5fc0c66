package main

import (
	"context"
	"fmt"
	"os"

	"github.com/keygate/keygate/internal/store"
)

// Deletes authorization codes and tokens past their expiry. Meant to run
// from cron against the same DATABASE_URL as the server; revoked but
// unexpired tokens are kept for auditing.
func main() {
	ctx := context.Background()

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set (pass it as env var or first argument)")
		os.Exit(1)
	}

	storage, err := store.Open(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to storage: %v\n", err)
		os.Exit(1)
	}
	defer storage.Close()

	codes, err := storage.DeleteExpiredAuthorizationCodes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Code cleanup failed: %v\n", err)
		os.Exit(1)
	}

	tokens, err := storage.DeleteExpiredTokens(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Token cleanup failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d expired authorization codes and %d expired tokens.\n", codes, tokens)
}
