package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"babygen/internal/domain"
	"babygen/internal/stability"
)

// keycheck validates a Stability AI key against the engines endpoint
// without running a generation, so a bad key is caught before the first
// expensive cycle.
func main() {
	var (
		keyFlag     string
		baseURLFlag string
		timeoutFlag time.Duration
	)
	flag.StringVar(&keyFlag, "key", "", "Stability API key (fallbacks to STABILITY_API_KEY)")
	flag.StringVar(&baseURLFlag, "base-url", "", "API base URL override")
	flag.DurationVar(&timeoutFlag, "timeout", 10*time.Second, "request timeout")
	flag.Parse()

	_ = godotenv.Load()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("STABILITY_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "Stability API key is required via -key or STABILITY_API_KEY")
		os.Exit(1)
	}

	client := stability.NewClient(stability.Options{
		BaseURL:         baseURLFlag,
		APIKey:          key,
		KeyCheckTimeout: timeoutFlag,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	if err := client.ValidateKey(ctx); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredential):
			fmt.Fprintln(os.Stderr, "key rejected: invalid credential")
		case errors.Is(err, domain.ErrRemoteQuota):
			fmt.Fprintln(os.Stderr, "key accepted but quota exhausted")
		default:
			fmt.Fprintf(os.Stderr, "key check failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println("Stability API key is valid")
}
