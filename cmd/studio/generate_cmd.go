package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prroha/fullstack-starter-sub010/pkg/artifacts"
	"github.com/prroha/fullstack-starter-sub010/pkg/assembly"
	"github.com/prroha/fullstack-starter-sub010/pkg/config"
	"github.com/prroha/fullstack-starter-sub010/pkg/observability"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
	"github.com/prroha/fullstack-starter-sub010/pkg/paths"
)

// runGenerateCmd implements `studio generate`.
//
// Exit codes:
//
//	0 = archive generated
//	2 = bad usage or runtime error
func runGenerateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("generate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		orderPath string
		outPath   string
		publish   bool
	)
	cmd.StringVar(&orderPath, "order", "", "Path to the order JSON (REQUIRED)")
	cmd.StringVar(&outPath, "out", "", "Output archive path, or - for stdout (REQUIRED)")
	cmd.BoolVar(&publish, "publish", false, "Publish the archive to the artifact store after generating")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if orderPath == "" || outPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --order and --out are required")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.ProjectRoot == "" || cfg.CoreBase == "" {
		_, _ = fmt.Fprintln(stderr, "Error: PROJECT_ROOT and CORE_BASE must be set")
		return 2
	}

	data, err := os.ReadFile(orderPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read order: %v\n", err)
		return 2
	}
	var o order.Details
	if err := json.Unmarshal(data, &o); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse order: %v\n", err)
		return 2
	}

	reader, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeCatalog()

	pathResolver, err := paths.NewResolver(cfg.ProjectRoot, cfg.CoreBase)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "starter-studio",
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
		SampleRate:   1.0,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	var sink io.Writer
	var outFile *os.File
	if outPath == "-" {
		sink = stdout
	} else {
		outFile, err = os.Create(outPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: create output: %v\n", err)
			return 2
		}
		sink = outFile
	}

	engine := assembly.NewEngine(reader, pathResolver)
	genCtx, finish := obs.TrackGeneration(ctx, o.OrderNumber, o.Tier)
	result, err := engine.Generate(genCtx, o, sink)

	var archiveSize int64
	if outFile != nil {
		if info, statErr := outFile.Stat(); statErr == nil {
			archiveSize = info.Size()
		}
		if closeErr := outFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	finish(archiveSize, err)

	if err != nil {
		if outFile != nil {
			_ = os.Remove(outPath)
		}
		_, _ = fmt.Fprintf(stderr, "Error: generate: %v\n", err)
		return 2
	}

	for _, w := range result.Warnings {
		_, _ = fmt.Fprintf(stderr, "warning: %s %s: %s\n", w.Code, w.Path, w.Detail)
	}
	_, _ = fmt.Fprintf(stderr, "Generated %s (%d entries, fingerprint %s)\n",
		result.ProjectName, result.Entries, result.Fingerprint)

	if publish && outPath != "-" {
		archive, readErr := os.ReadFile(outPath)
		if readErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read archive for publish: %v\n", readErr)
			return 2
		}
		store, storeErr := artifacts.NewStoreFromEnv(ctx)
		if storeErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", storeErr)
			return 2
		}
		ref, putErr := store.Put(ctx, o.OrderNumber, archive)
		if putErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: publish: %v\n", putErr)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "Published %s (sha256 %s, %d bytes)\n", ref.Key, ref.SHA256, ref.Size)
	}

	return 0
}
