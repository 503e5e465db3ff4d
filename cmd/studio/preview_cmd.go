package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/prroha/fullstack-starter-sub010/pkg/config"
	"github.com/prroha/fullstack-starter-sub010/pkg/preview"
)

// runPreviewCmd implements `studio preview provision|invalidate|drop`
// against the configured preview backend.
func runPreviewCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: studio preview <provision|invalidate|drop> [flags]")
		return 2
	}
	op := args[0]

	cmd := flag.NewFlagSet("preview "+op, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		token    string
		tier     string
		features string
		schema   string
	)
	cmd.StringVar(&token, "token", "", "Session token (provision, invalidate)")
	cmd.StringVar(&tier, "tier", "", "Tier slug (provision)")
	cmd.StringVar(&features, "features", "", "Comma-separated feature slugs (provision)")
	cmd.StringVar(&schema, "schema", "", "Schema name (drop)")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.PreviewBackendURL == "" || cfg.InternalAPISecret == "" {
		_, _ = fmt.Fprintln(stderr, "Error: PREVIEW_BACKEND_URL and INTERNAL_API_SECRET must be set")
		return 2
	}

	client, err := preview.NewClient(cfg.PreviewBackendURL, cfg.InternalAPISecret)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var store preview.Store
	if cfg.RedisAddr != "" {
		store = preview.NewRedisStore(cfg.RedisAddr, "", 0)
	} else {
		store = preview.NewMemoryStore()
	}
	manager := preview.NewManager(store, client)

	ctx := context.Background()
	switch op {
	case "provision":
		if tier == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --tier is required")
			return 2
		}
		if token == "" {
			token = preview.NewSessionToken()
		}
		var slugs []string
		for _, f := range strings.Split(features, ",") {
			if f = strings.TrimSpace(f); f != "" {
				slugs = append(slugs, f)
			}
		}
		session, err := manager.Provision(ctx, token, slugs, tier)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: provision: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "token=%s schema=%s status=%s expires=%s\n",
			session.Token, session.SchemaName, session.SchemaStatus, session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
		return 0

	case "invalidate":
		if token == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --token is required")
			return 2
		}
		if err := manager.Invalidate(ctx, token); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: invalidate: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintln(stdout, "invalidated")
		return 0

	case "drop":
		if schema == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --schema is required")
			return 2
		}
		if err := manager.Drop(ctx, schema); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: drop: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintln(stdout, "dropped")
		return 0

	default:
		_, _ = fmt.Fprintf(stderr, "Unknown preview operation: %s\n", op)
		return 2
	}
}
