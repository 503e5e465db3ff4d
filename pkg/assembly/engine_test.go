package assembly

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
	"github.com/prroha/fullstack-starter-sub010/pkg/paths"
)

var orderCreatedAt = time.Date(2026, 5, 20, 10, 30, 0, 0, time.UTC)

const baseSchemaFile = `generator client {
  provider = "prisma-client-js"
}

datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model User {
  id    String @id @default(cuid())
  email String @unique
}
`

const authFragment = `model Session {
  id        String   @id @default(cuid())
  userId    String
  expiresAt DateTime
}

enum Role {
  ADMIN
  MEMBER
}
`

const paymentsFragment = `model Payment {
  id     String @id @default(cuid())
  amount Int
}

model User {
  id  String @id
  bio String
}
`

const baseServerManifest = `{
  "name": "starter-backend",
  "version": "1.0.0",
  "scripts": {
    "build": "tsc -p tsconfig.json",
    "start": "node dist/index.js"
  },
  "dependencies": {
    "express": "^4.18.2"
  },
  "devDependencies": {
    "typescript": "^5.3.3"
  }
}`

const baseWebManifest = `{
  "name": "starter-web",
  "version": "1.0.0",
  "dependencies": {
    "react": "^18.2.0"
  }
}`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

type fixture struct {
	projectRoot string
	reader      *catalog.MemoryReader
	engine      *Engine
	order       order.Details
}

// newFixture lays out a small template checkout: a core tree with base
// manifest, schema and junk that must be excluded, plus two feature module
// directories.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "core/backend/package.json", baseServerManifest)
	writeFile(t, root, "core/backend/prisma/schema.prisma", baseSchemaFile)
	writeFile(t, root, "core/backend/src/index.ts", "export {};\n")
	writeFile(t, root, "core/web/package.json", baseWebManifest)
	writeFile(t, root, "core/README.md", "core scaffold readme\n")
	writeFile(t, root, "core/.env", "SECRET=do-not-ship\n")
	writeFile(t, root, "core/debug.log", "noise\n")
	writeFile(t, root, "core/docker-compose.preview.yml", "services: {}\n")
	writeFile(t, root, "core/node_modules/leftover/index.js", "module.exports = {};\n")

	writeFile(t, root, "modules/auth/src/auth.service.ts", "export class AuthService {}\n")
	writeFile(t, root, "modules/auth/src/middleware/guard.ts", "export const guard = true;\n")
	writeFile(t, root, "modules/auth/prisma/auth.prisma", authFragment)
	writeFile(t, root, "modules/payments/src/payments.service.ts", "export class PaymentsService {}\n")
	writeFile(t, root, "modules/payments/prisma/payments.prisma", paymentsFragment)

	reader := catalog.NewMemoryReader()
	reader.AddFeature(catalog.Feature{
		Slug:     "auth",
		Name:     "Auth",
		Module:   "auth",
		IsActive: true,
		FileMappings: []catalog.FileMapping{
			{Source: "modules/auth/src", Destination: "backend/src/modules/auth"},
		},
		SchemaMappings: []catalog.SchemaMapping{
			{Model: "Session", Source: "modules/auth/prisma/auth.prisma"},
		},
		EnvVars: []catalog.EnvVar{
			{Key: "AUTH_SESSION_SECRET", Description: "Secret for signing sessions", Required: true},
		},
		NPMPackages: []catalog.PackageSpec{
			{Name: "zod", Version: "^3.22.0", Kind: catalog.KindRuntime},
		},
	})
	reader.AddFeature(catalog.Feature{
		Slug:     "payments",
		Name:     "Payments",
		Module:   "billing",
		Price:    900,
		IsActive: true,
		FileMappings: []catalog.FileMapping{
			{Source: "modules/payments/src/payments.service.ts", Destination: "backend/src/modules/payments/payments.service.ts"},
		},
		SchemaMappings: []catalog.SchemaMapping{
			{Model: "Payment", Source: "modules/payments/prisma/payments.prisma"},
		},
		EnvVars: []catalog.EnvVar{
			{Key: "STRIPE_SECRET_KEY", Description: "Stripe secret key", Required: true},
			{Key: "DATABASE_URL", Description: "Payments database", Default: "postgres://payments"},
		},
		NPMPackages: []catalog.PackageSpec{
			{Name: "stripe", Version: "^13.0.0", Kind: catalog.KindRuntime},
			{Name: "@stripe/stripe-js", Version: "^2.1.0", Kind: catalog.KindRuntime, Target: catalog.TargetWeb},
		},
	})
	reader.AddTier(catalog.Tier{
		Slug:             "basic",
		Name:             "Basic",
		Price:            1900,
		IncludedFeatures: []string{"auth"},
		IsActive:         true,
	})

	pr, err := paths.NewResolver(root, "")
	require.NoError(t, err)

	eng := NewEngine(reader, pr,
		WithEngineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	return &fixture{
		projectRoot: root,
		reader:      reader,
		engine:      eng,
		order: order.Details{
			OrderNumber:      "ORD-2026-000042",
			Tier:             "basic",
			SelectedFeatures: []string{"payments"},
			CustomerEmail:    "jane@example.com",
			CustomerName:     "Jane Doe",
			CreatedAt:        orderCreatedAt,
			License: order.License{
				Key:          "FSK-TEST-0000-1111-2222",
				MaxDownloads: 5,
				Status:       order.LicenseActive,
			},
		},
	}
}

func (f *fixture) generate(t *testing.T) (*Result, []byte) {
	t.Helper()
	var buf bytes.Buffer
	res, err := f.engine.Generate(context.Background(), f.order, &buf)
	require.NoError(t, err)
	return res, buf.Bytes()
}

func readArchive(t *testing.T, data []byte) (*zip.Reader, []string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return zr, names
}

func entryContent(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer func() { _ = rc.Close() }()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("entry %s not found in archive", name)
	return ""
}

func hasWarning(warnings []diag.Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestGenerateEntryOrder(t *testing.T) {
	f := newFixture(t)
	res, data := f.generate(t)

	_, names := readArchive(t, data)
	assert.Equal(t, []string{
		"starter-basic/backend/src/index.ts",
		"starter-basic/backend/src/modules/auth/auth.service.ts",
		"starter-basic/backend/src/modules/auth/middleware/guard.ts",
		"starter-basic/backend/src/modules/payments/payments.service.ts",
		"starter-basic/backend/prisma/schema.prisma",
		"starter-basic/backend/package.json",
		"starter-basic/web/package.json",
		"starter-basic/backend/.env.example",
		"starter-basic/LICENSE.md",
		"starter-basic/README.md",
		"starter-basic/starter-config.json",
	}, names)
	assert.Equal(t, len(names), res.Entries)
	assert.Equal(t, "starter-basic", res.ProjectName)
}

func TestGenerateExcludesJunk(t *testing.T) {
	f := newFixture(t)
	_, data := f.generate(t)

	_, names := readArchive(t, data)
	for _, name := range names {
		assert.True(t, strings.HasPrefix(name, "starter-basic/"), "entry %s outside project dir", name)
		assert.NotContains(t, name, ".env\n")
		assert.NotContains(t, name, "node_modules")
		assert.NotContains(t, name, "debug.log")
		assert.NotContains(t, name, "docker-compose.preview.yml")
	}
	assert.NotContains(t, names, "starter-basic/.env")
}

func TestGenerateFixedModTime(t *testing.T) {
	f := newFixture(t)
	_, data := f.generate(t)

	zr, _ := readArchive(t, data)
	for _, zf := range zr.File {
		assert.True(t, zf.Modified.UTC().Equal(orderCreatedAt), "entry %s modtime %s", zf.Name, zf.Modified)
	}
}

func TestGenerateMergedSchema(t *testing.T) {
	f := newFixture(t)
	res, data := f.generate(t)

	zr, _ := readArchive(t, data)
	merged := entryContent(t, zr, "starter-basic/backend/prisma/schema.prisma")

	assert.Equal(t, 1, strings.Count(merged, "model User {"))
	assert.NotContains(t, merged, "bio")
	assert.Contains(t, merged, "model Session {")
	assert.Contains(t, merged, "model Payment {")
	assert.Contains(t, merged, "enum Role {")

	assert.Equal(t, []string{"User", "Session", "Payment"}, res.Models)
	assert.Equal(t, []string{"Role"}, res.Enums)
	assert.True(t, hasWarning(res.Warnings, diag.CodeSchemaDuplicate))
}

func TestGenerateMergedManifests(t *testing.T) {
	f := newFixture(t)
	_, data := f.generate(t)
	zr, _ := readArchive(t, data)

	var server struct {
		Name         string            `json:"name"`
		Scripts      map[string]string `json:"scripts"`
		Dependencies map[string]string `json:"dependencies"`
		Dev          map[string]string `json:"devDependencies"`
	}
	require.NoError(t, json.Unmarshal([]byte(entryContent(t, zr, "starter-basic/backend/package.json")), &server))
	assert.Equal(t, "starter-backend", server.Name)
	assert.Equal(t, "^4.18.2", server.Dependencies["express"])
	assert.Equal(t, "^3.22.0", server.Dependencies["zod"])
	assert.Equal(t, "^13.0.0", server.Dependencies["stripe"])
	assert.NotContains(t, server.Dependencies, "@stripe/stripe-js")
	assert.Equal(t, "^5.3.3", server.Dev["typescript"])
	assert.Equal(t, "starter codegen auth", server.Scripts["codegen:auth"])
	assert.Equal(t, "starter codegen payments", server.Scripts["codegen:payments"])
	assert.Equal(t, "tsc -p tsconfig.json", server.Scripts["build"])

	var web struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal([]byte(entryContent(t, zr, "starter-basic/web/package.json")), &web))
	assert.Equal(t, "^18.2.0", web.Dependencies["react"])
	assert.Equal(t, "^2.1.0", web.Dependencies["@stripe/stripe-js"])
	assert.NotContains(t, web.Dependencies, "stripe")
}

func TestGenerateOmitsWebManifestWithoutBase(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.projectRoot, "core", "web", "package.json")))

	_, data := f.generate(t)
	_, names := readArchive(t, data)
	assert.NotContains(t, names, "starter-basic/web/package.json")
	assert.Contains(t, names, "starter-basic/backend/package.json")
}

func TestGenerateEnvExample(t *testing.T) {
	f := newFixture(t)
	res, data := f.generate(t)
	zr, _ := readArchive(t, data)

	env := entryContent(t, zr, "starter-basic/backend/.env.example")

	core := []string{"NODE_ENV=", "PORT=", "API_URL=", "DATABASE_URL=", "JWT_SECRET=",
		"JWT_EXPIRES_IN=", "JWT_REFRESH_EXPIRES_IN=", "CORS_ORIGIN=", "FRONTEND_URL="}
	last := -1
	for _, key := range core {
		idx := strings.Index(env, key)
		require.GreaterOrEqual(t, idx, 0, "core key %s missing", key)
		assert.Greater(t, idx, last, "core key %s out of order", key)
		last = idx
	}

	assert.Contains(t, env, "# Auth\n# Secret for signing sessions (required)\nAUTH_SESSION_SECRET=\n")
	assert.Contains(t, env, "# Payments\n# Stripe secret key (required)\nSTRIPE_SECRET_KEY=\n")

	// payments redeclares DATABASE_URL; the core block keeps it.
	assert.Equal(t, 1, strings.Count(env, "DATABASE_URL="))
	assert.True(t, hasWarning(res.Warnings, diag.CodeDependencyConflict))
}

func TestGenerateLicenseCollateral(t *testing.T) {
	f := newFixture(t)
	_, data := f.generate(t)
	zr, _ := readArchive(t, data)

	lic := entryContent(t, zr, "starter-basic/LICENSE.md")
	assert.Contains(t, lic, "FSK-TEST-0000-1111-2222")
	assert.Contains(t, lic, "ORD-2026-000042")
	assert.Contains(t, lic, "Jane Doe <jane@example.com>")

	readme := entryContent(t, zr, "starter-basic/README.md")
	assert.True(t, strings.HasPrefix(readme, "# Starter (Basic)"), "readme header: %q", readme[:40])
	assert.NotContains(t, readme, "core scaffold readme", "base README must be replaced")

	var cfg struct {
		Tier     string   `json:"tier"`
		Template any      `json:"template"`
		Features []string `json:"features"`
		License  struct {
			Key         string `json:"key"`
			OrderNumber string `json:"orderNumber"`
		} `json:"license"`
	}
	require.NoError(t, json.Unmarshal([]byte(entryContent(t, zr, "starter-basic/starter-config.json")), &cfg))
	assert.Equal(t, "basic", cfg.Tier)
	assert.Nil(t, cfg.Template)
	assert.Equal(t, []string{"auth", "payments"}, cfg.Features)
	assert.Equal(t, "FSK-TEST-0000-1111-2222", cfg.License.Key)
	assert.Equal(t, "ORD-2026-000042", cfg.License.OrderNumber)
}

func TestGenerateDeterminism(t *testing.T) {
	f := newFixture(t)
	first, firstData := f.generate(t)
	second, secondData := f.generate(t)

	assert.True(t, bytes.Equal(firstData, secondData), "two runs over the same inputs must be byte-identical")
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestGenerateFingerprintTracksInputs(t *testing.T) {
	f := newFixture(t)
	first, _ := f.generate(t)

	f.order.SelectedFeatures = nil
	second, _ := f.generate(t)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestGeneratePathTraversalAbortsBeforeIO(t *testing.T) {
	f := newFixture(t)
	f.reader.AddFeature(catalog.Feature{
		Slug:     "evil",
		Name:     "Evil",
		Module:   "zz",
		IsActive: true,
		FileMappings: []catalog.FileMapping{
			{Source: "modules/../../etc/passwd", Destination: "x"},
		},
	})
	f.order.SelectedFeatures = []string{"payments", "evil"}

	var buf bytes.Buffer
	_, err := f.engine.Generate(context.Background(), f.order, &buf)
	require.Error(t, err)

	var esc *paths.EscapeError
	require.ErrorAs(t, err, &esc)
	assert.Equal(t, 0, buf.Len(), "no bytes may be emitted on a path escape")
}

func TestGenerateMissingSourceWarns(t *testing.T) {
	f := newFixture(t)
	f.reader.AddFeature(catalog.Feature{
		Slug:     "ghost",
		Name:     "Ghost",
		Module:   "misc",
		IsActive: true,
		FileMappings: []catalog.FileMapping{
			{Source: "modules/ghost/src", Destination: "backend/src/modules/ghost"},
		},
	})
	f.order.SelectedFeatures = []string{"ghost"}

	res, data := f.generate(t)
	assert.True(t, hasWarning(res.Warnings, diag.CodeMissingSource))

	_, names := readArchive(t, data)
	for _, name := range names {
		assert.NotContains(t, name, "ghost")
	}
}

func TestGenerateDuplicateDestinationFirstWins(t *testing.T) {
	f := newFixture(t)
	f.reader.AddFeature(catalog.Feature{
		Slug:     "clash",
		Name:     "Clash",
		Module:   "zz",
		IsActive: true,
		FileMappings: []catalog.FileMapping{
			{Source: "modules/payments/src/payments.service.ts", Destination: "backend/src/modules/auth/auth.service.ts"},
		},
	})
	f.order.SelectedFeatures = []string{"payments", "clash"}

	res, data := f.generate(t)
	assert.True(t, hasWarning(res.Warnings, diag.CodeDuplicateDest))

	zr, _ := readArchive(t, data)
	content := entryContent(t, zr, "starter-basic/backend/src/modules/auth/auth.service.ts")
	assert.Contains(t, content, "AuthService", "first write wins")
}

func TestGenerateReservedDestinationWarns(t *testing.T) {
	f := newFixture(t)
	f.reader.AddFeature(catalog.Feature{
		Slug:     "squatter",
		Name:     "Squatter",
		Module:   "zz",
		IsActive: true,
		FileMappings: []catalog.FileMapping{
			{Source: "modules/payments/src/payments.service.ts", Destination: "README.md"},
		},
	})
	f.order.SelectedFeatures = []string{"squatter"}

	res, data := f.generate(t)
	assert.True(t, hasWarning(res.Warnings, diag.CodeReservedPath))

	zr, _ := readArchive(t, data)
	readme := entryContent(t, zr, "starter-basic/README.md")
	assert.NotContains(t, readme, "PaymentsService")
}

func TestGenerateUnknownTier(t *testing.T) {
	f := newFixture(t)
	f.order.Tier = "platinum"

	var buf bytes.Buffer
	_, err := f.engine.Generate(context.Background(), f.order, &buf)
	require.ErrorIs(t, err, catalog.ErrTierNotFound)
}

func TestGenerateCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := f.engine.Generate(ctx, f.order, &buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerateTemplateProjectName(t *testing.T) {
	f := newFixture(t)
	f.reader.AddTemplate(catalog.Template{
		Slug:             "saas",
		Name:             "SaaS Starter",
		IncludedFeatures: []string{"payments"},
	})
	f.order.Template = "saas"
	f.order.SelectedFeatures = nil

	res, data := f.generate(t)
	assert.Equal(t, "saas-basic", res.ProjectName)

	zr, names := readArchive(t, data)
	assert.Contains(t, names, "saas-basic/backend/src/modules/payments/payments.service.ts",
		"template includedFeatures seed the resolution")

	readme := entryContent(t, zr, "saas-basic/README.md")
	assert.True(t, strings.HasPrefix(readme, "# SaaS Starter (Basic)"))
}

func TestSortByDirThenName(t *testing.T) {
	entries := []string{
		"a/b/deep.ts",
		"z.txt",
		"a/file.ts",
		"README.txt",
		"a/b/aaa.ts",
	}
	sortByDirThenName(entries)
	assert.Equal(t, []string{
		"README.txt",
		"z.txt",
		"a/file.ts",
		"a/b/aaa.ts",
		"a/b/deep.ts",
	}, entries)
}
