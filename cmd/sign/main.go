package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fanout/flychat/internal/crypto"
	"github.com/fanout/flychat/internal/fanout"
)

func main() {
	gripURL := flag.String("grip", os.Getenv("GRIP_URL"), "GRIP URL carrying iss and key (defaults to $GRIP_URL)")
	ttl := flag.Duration("ttl", crypto.ControlTokenTTL, "Token lifetime")
	verify := flag.String("verify", "", "Verify this token instead of minting one")
	flag.Parse()

	if *gripURL == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -grip <grip-url> [-ttl 10m] [-verify <token>]")
		os.Exit(1)
	}

	cfg, err := fanout.ParseGripURI(*gripURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid GRIP URL: %v\n", err)
		os.Exit(1)
	}

	if *verify != "" {
		iss, err := crypto.VerifyControlToken(*verify, cfg.Key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("valid, iss=%s\n", iss)
		return
	}

	if cfg.ControlIss == "" {
		fmt.Fprintln(os.Stderr, "GRIP URL has no iss; the proxy accepts unsigned publishes")
		os.Exit(1)
	}

	token, err := crypto.SignControlToken(cfg.ControlIss, cfg.Key, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Printf("Publish URL:   %s/publish/\n", cfg.ControlURI)
}
