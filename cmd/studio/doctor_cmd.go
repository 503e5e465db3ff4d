package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prroha/fullstack-starter-sub010/pkg/config"
)

// runDoctorCmd implements `studio doctor`: a readiness report over the
// process configuration. Exit 0 when every required setting is present.
func runDoctorCmd(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	_, _ = fmt.Fprintln(stdout, "studio configuration")
	_, _ = fmt.Fprintln(stdout, "--------------------")
	report(stdout, "PROJECT_ROOT", cfg.ProjectRoot, true)
	report(stdout, "CORE_BASE", cfg.CoreBase, true)
	report(stdout, "CORS_ORIGIN", cfg.CORSOrigin, true)
	report(stdout, "EMAIL_FROM", cfg.EmailFrom, true)
	report(stdout, "PORT", cfg.Port, false)
	report(stdout, "DATABASE_URL", cfg.DatabaseURL, false)
	report(stdout, "STUDIO_SQLITE", cfg.SQLitePath, false)
	report(stdout, "PREVIEW_BACKEND_URL", cfg.PreviewBackendURL, false)
	report(stdout, "INTERNAL_API_SECRET", cfg.InternalAPISecret, cfg.PreviewBackendURL != "")
	report(stdout, "REDIS_ADDR", cfg.RedisAddr, false)
	report(stdout, "DOWNLOAD_TOKEN_SECRET", cfg.DownloadTokenSecret, false)
	_, _ = fmt.Fprintf(stdout, "  %-22s %v\n", "OTEL_ENABLED", cfg.OTelEnabled)

	if cfg.ProjectRoot != "" {
		checkDir(stdout, "project root", cfg.ProjectRoot)
	}
	if cfg.CoreBase != "" {
		checkDir(stdout, "core base", cfg.CoreBase)
	}

	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "\n%v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "\nConfiguration OK")
	return 0
}

func report(w io.Writer, name, value string, required bool) {
	display := value
	switch {
	case value == "" && required:
		display = "(MISSING)"
	case value == "":
		display = "(unset)"
	case name == "INTERNAL_API_SECRET" || name == "DOWNLOAD_TOKEN_SECRET" || name == "DATABASE_URL":
		display = "(set)"
	}
	_, _ = fmt.Fprintf(w, "  %-22s %s\n", name, display)
}

func checkDir(w io.Writer, label, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		_, _ = fmt.Fprintf(w, "  %s: NOT READABLE (%v)\n", label, err)
	case !info.IsDir():
		_, _ = fmt.Fprintf(w, "  %s: not a directory\n", label)
	default:
		_, _ = fmt.Fprintf(w, "  %s: ok\n", label)
	}
}
