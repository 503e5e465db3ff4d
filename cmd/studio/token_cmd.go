package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/prroha/fullstack-starter-sub010/pkg/config"
	"github.com/prroha/fullstack-starter-sub010/pkg/license"
)

// runTokenCmd implements `studio token mint|verify` for license download
// tokens. The signing secret comes from DOWNLOAD_TOKEN_SECRET.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: studio token <mint|verify> [flags]")
		return 2
	}
	op := args[0]

	cmd := flag.NewFlagSet("token "+op, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		orderNumber string
		licenseKey  string
		ttl         time.Duration
		tokenString string
	)
	cmd.StringVar(&orderNumber, "order", "", "Order number (mint)")
	cmd.StringVar(&licenseKey, "key", "", "License key (mint; generated when empty)")
	cmd.DurationVar(&ttl, "ttl", 7*24*time.Hour, "Token lifetime (mint)")
	cmd.StringVar(&tokenString, "token", "", "Token to verify (verify)")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.DownloadTokenSecret == "" {
		_, _ = fmt.Fprintln(stderr, "Error: DOWNLOAD_TOKEN_SECRET must be set")
		return 2
	}
	secret := []byte(cfg.DownloadTokenSecret)

	switch op {
	case "mint":
		if orderNumber == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --order is required")
			return 2
		}
		if licenseKey == "" {
			licenseKey, err = license.NewKey()
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
		}
		token, err := license.MintDownloadToken(secret, orderNumber, licenseKey, ttl, time.Now())
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "key=%s\ntoken=%s\n", licenseKey, token)
		return 0

	case "verify":
		if tokenString == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --token is required")
			return 2
		}
		claims, err := license.VerifyDownloadToken(secret, tokenString)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: invalid token: %v\n", err)
			return 2
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(claims); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return 0

	default:
		_, _ = fmt.Fprintf(stderr, "Unknown token operation: %s\n", op)
		return 2
	}
}
