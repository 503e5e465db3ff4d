package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/prroha/fullstack-starter-sub010/pkg/config"
	"github.com/prroha/fullstack-starter-sub010/pkg/pricing"
)

// runPriceCmd implements `studio price`: it prints the quote breakdown for
// a tier + feature selection as JSON.
func runPriceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("price", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		tier     string
		features string
		coupon   string
		currency string
	)
	cmd.StringVar(&tier, "tier", "", "Tier slug (REQUIRED)")
	cmd.StringVar(&features, "features", "", "Comma-separated feature slugs")
	cmd.StringVar(&coupon, "coupon", "", "Coupon code")
	cmd.StringVar(&currency, "currency", "usd", "Currency code")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if tier == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --tier is required")
		return 2
	}

	var selected []string
	for _, f := range strings.Split(features, ",") {
		if f = strings.TrimSpace(f); f != "" {
			selected = append(selected, f)
		}
	}

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	reader, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeCatalog()

	calc, err := pricing.NewCalculator(reader, pricing.WithCurrency(currency))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	quote, err := calc.Calculate(ctx, tier, selected, coupon)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(quote); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
