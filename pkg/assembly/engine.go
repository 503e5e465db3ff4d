// Package assembly streams a purchased starter kit as a deterministic ZIP:
// base tree copy, per-feature file mappings, merged schema and manifests,
// rendered env template and license collateral. Entry order, modification
// times, and compression are fixed so equal inputs produce equal bytes.
package assembly

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
	"github.com/prroha/fullstack-starter-sub010/pkg/license"
	"github.com/prroha/fullstack-starter-sub010/pkg/manifest"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
	"github.com/prroha/fullstack-starter-sub010/pkg/paths"
	"github.com/prroha/fullstack-starter-sub010/pkg/resolver"
	"github.com/prroha/fullstack-starter-sub010/pkg/schema"
)

// reservedPaths are produced by the generation tail, never by the base tree
// or a feature mapping. Relative to the project directory.
var reservedPaths = map[string]bool{
	"backend/prisma/schema.prisma": true,
	"backend/package.json":         true,
	"web/package.json":             true,
	"backend/.env.example":         true,
	"LICENSE.md":                   true,
	"README.md":                    true,
	"starter-config.json":          true,
}

const copyBufferSize = 32 * 1024

// Result describes one finished generation run. RunID is unique per run;
// Fingerprint is stable across runs with identical inputs.
type Result struct {
	RunID       string         `json:"runId"`
	ProjectName string         `json:"projectName"`
	Entries     int            `json:"entries"`
	Models      []string       `json:"models"`
	Enums       []string       `json:"enums"`
	Warnings    []diag.Warning `json:"warnings,omitempty"`
	Fingerprint string         `json:"fingerprint"`
}

// Engine assembles starter archives. Safe for concurrent use; every
// Generate call keeps its own state.
type Engine struct {
	catalog  catalog.Reader
	resolver *resolver.Resolver
	paths    *paths.Resolver
	log      *slog.Logger
}

// EngineOption adjusts an Engine at construction.
type EngineOption func(*Engine)

// WithEngineLogger overrides the engine's logger.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

func NewEngine(reader catalog.Reader, pathResolver *paths.Resolver, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:  reader,
		resolver: resolver.New(reader),
		paths:    pathResolver,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate streams the archive for an order into w. The stream begins only
// after every mapping of every resolved feature passed path validation, so
// a path escape aborts with zero bytes written.
func (e *Engine) Generate(ctx context.Context, o order.Details, w io.Writer) (*Result, error) {
	tier, err := e.catalog.Tier(ctx, o.Tier)
	if err != nil {
		return nil, fmt.Errorf("assembly: tier %q: %w", o.Tier, err)
	}
	var tmpl *catalog.Template
	if o.Template != "" {
		tmpl, err = e.catalog.Template(ctx, o.Template)
		if err != nil {
			return nil, fmt.Errorf("assembly: template %q: %w", o.Template, err)
		}
	}

	res, err := e.resolver.Resolve(ctx, o.SelectedFeatures, tier, tmpl)
	if err != nil {
		return nil, err
	}

	projectName := o.ProjectName()

	filePlans, schemaPlans, err := e.validateMappings(res.Features, projectName)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine:      e,
		order:       o,
		projectName: projectName,
		aw:          newArchiveWriter(w, o.CreatedAt),
		written:     make(map[string]bool),
		warnings:    append([]diag.Warning(nil), res.Warnings...),
		buf:         make([]byte, copyBufferSize),
	}

	if err := r.copyBaseTree(ctx); err != nil {
		return nil, err
	}
	if err := r.copyFeatureFiles(ctx, filePlans); err != nil {
		return nil, err
	}
	merged := r.mergeSchema(schemaPlans)
	if err := r.writeTail(ctx, res, merged, tmpl); err != nil {
		return nil, err
	}
	if err := r.aw.Close(); err != nil {
		return nil, fmt.Errorf("assembly: finalize archive: %w", err)
	}

	fp, err := fingerprint(o, projectName, res.Features)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:       uuid.NewString(),
		ProjectName: projectName,
		Entries:     r.aw.entries,
		Models:      merged.Models,
		Enums:       merged.Enums,
		Warnings:    r.warnings,
		Fingerprint: fp,
	}
	e.log.Info("assembly: archive generated",
		"order", o.OrderNumber,
		"project", projectName,
		"entries", result.Entries,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// filePlan is one validated file mapping ready for the copy phase.
type filePlan struct {
	feature string
	logical string
	src     string
	dest    string
}

// schemaPlan is one validated schema mapping ready for the merge phase.
type schemaPlan struct {
	feature string
	logical string
	src     string
}

// validateMappings resolves every source and destination of every resolved
// feature before any archive byte is written.
func (e *Engine) validateMappings(features []catalog.Feature, projectName string) ([]filePlan, []schemaPlan, error) {
	var files []filePlan
	var schemas []schemaPlan
	for _, f := range features {
		for _, m := range f.FileMappings {
			src, err := e.paths.ResolveSource(m.Source)
			if err != nil {
				return nil, nil, fmt.Errorf("assembly: feature %s: %w", f.Slug, err)
			}
			dest, err := e.paths.ResolveDestination(projectName, m.Destination)
			if err != nil {
				return nil, nil, fmt.Errorf("assembly: feature %s: %w", f.Slug, err)
			}
			files = append(files, filePlan{feature: f.Slug, logical: m.Source, src: src, dest: dest})
		}
		for _, m := range f.SchemaMappings {
			src, err := e.paths.ResolveSource(m.Source)
			if err != nil {
				return nil, nil, fmt.Errorf("assembly: feature %s: %w", f.Slug, err)
			}
			schemas = append(schemas, schemaPlan{feature: f.Slug, logical: m.Source, src: src})
		}
	}
	return files, schemas, nil
}

// run is the per-generate state: one archive writer, one warning sink, one
// set of claimed destinations.
type run struct {
	engine      *Engine
	order       order.Details
	projectName string
	aw          *archiveWriter
	written     map[string]bool
	warnings    []diag.Warning
	buf         []byte
}

func (r *run) warnf(code, path, format string, args ...any) {
	r.warnings = append(r.warnings, diag.Warningf(code, path, format, args...))
}

// copyBaseTree streams every kept file of the core base, sorted by
// (directory, name) so files in a directory come before its subdirectories.
func (r *run) copyBaseTree(ctx context.Context) error {
	root := r.engine.paths.CoreBase
	var rels []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && excludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excludeFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return fmt.Errorf("assembly: walk core base: %w", err)
	}

	sortByDirThenName(rels)

	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if reservedPaths[rel] {
			continue
		}
		dest := r.projectName + "/" + rel
		if err := r.copyFile(ctx, filepath.Join(root, filepath.FromSlash(rel)), dest); err != nil {
			return err
		}
		r.written[dest] = true
	}
	return nil
}

// copyFeatureFiles streams the mapped files: feature order, then mapping
// order, then recursive lexicographic order inside directory mappings.
func (r *run) copyFeatureFiles(ctx context.Context, plans []filePlan) error {
	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(plan.src)
		if err != nil {
			r.warnf(diag.CodeMissingSource, plan.logical, "feature %s: source not readable: %v", plan.feature, err)
			continue
		}
		if info.IsDir() {
			if err := r.copyMappedDir(ctx, plan); err != nil {
				return err
			}
			continue
		}
		if err := r.writeMapped(ctx, plan.feature, plan.src, plan.dest); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) copyMappedDir(ctx context.Context, plan filePlan) error {
	var rels []string
	err := filepath.WalkDir(plan.src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != plan.src && excludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excludeFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(plan.src, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		r.warnf(diag.CodeMissingSource, plan.logical, "feature %s: walk failed: %v", plan.feature, err)
		return nil
	}

	sortByDirThenName(rels)

	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(plan.src, filepath.FromSlash(rel))
		if err := r.writeMapped(ctx, plan.feature, src, plan.dest+"/"+rel); err != nil {
			return err
		}
	}
	return nil
}

// writeMapped copies one mapped file unless its destination is reserved or
// already claimed; first write wins.
func (r *run) writeMapped(ctx context.Context, feature, src, dest string) error {
	rel := strings.TrimPrefix(dest, r.projectName+"/")
	if reservedPaths[rel] {
		r.warnf(diag.CodeReservedPath, rel, "feature %s: destination is generated by the engine, mapping skipped", feature)
		return nil
	}
	if r.written[dest] {
		r.warnf(diag.CodeDuplicateDest, dest, "feature %s: destination already written, first write wins", feature)
		return nil
	}
	if err := r.copyFile(ctx, src, dest); err != nil {
		return err
	}
	r.written[dest] = true
	return nil
}

// copyFile streams one filesystem file into the archive, checking ctx
// between chunks.
func (r *run) copyFile(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("assembly: open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	w, err := r.aw.Create(dest)
	if err != nil {
		return fmt.Errorf("assembly: create entry %s: %w", dest, err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := f.Read(r.buf)
		if n > 0 {
			if _, werr := w.Write(r.buf[:n]); werr != nil {
				return fmt.Errorf("assembly: write entry %s: %w", dest, werr)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("assembly: read %s: %w", src, rerr)
		}
	}
}

// mergeSchema reads the base schema and every feature fragment, then
// merges. Unreadable fragments degrade to warnings; a missing base yields
// the synthesized header.
func (r *run) mergeSchema(plans []schemaPlan) schema.Result {
	base := ""
	basePath := filepath.Join(r.engine.paths.CoreBase, "backend", "prisma", "schema.prisma")
	if data, err := os.ReadFile(basePath); err == nil {
		base = string(data)
	}

	var fragments []schema.Fragment
	for _, plan := range plans {
		data, err := os.ReadFile(plan.src)
		if err != nil {
			r.warnf(diag.CodeSchemaFragment, plan.logical, "feature %s: fragment not readable: %v", plan.feature, err)
			continue
		}
		fragments = append(fragments, schema.Fragment{Feature: plan.feature, Source: plan.logical, Text: string(data)})
	}

	merged := schema.Merge(base, fragments)
	r.warnings = append(r.warnings, merged.Warnings...)
	return merged
}

// writeTail emits the generated files in their fixed order: schema, server
// manifest, web manifest, env template, license, readme, config.
func (r *run) writeTail(ctx context.Context, res *resolver.Resolution, merged schema.Result, tmpl *catalog.Template) error {
	serverManifest, webManifest, err := r.mergeManifests(res)
	if err != nil {
		return err
	}

	envText, envWarnings := renderEnvExample(res.Features)
	r.warnings = append(r.warnings, envWarnings...)

	templateName := ""
	if tmpl != nil {
		templateName = tmpl.Name
	}
	generatedAt := r.order.CreatedAt.UTC()

	configJSON, err := license.RenderConfig(r.order, res.Features, generatedAt)
	if err != nil {
		return fmt.Errorf("assembly: render config: %w", err)
	}

	tail := []struct {
		rel  string
		data []byte
	}{
		{"backend/prisma/schema.prisma", []byte(merged.Schema)},
		{"backend/package.json", serverManifest},
		{"web/package.json", webManifest},
		{"backend/.env.example", []byte(envText)},
		{"LICENSE.md", []byte(license.RenderLicense(r.order, generatedAt))},
		{"README.md", []byte(license.RenderReadme(r.order, templateName, res.Features, generatedAt))},
		{"starter-config.json", configJSON},
	}
	for _, t := range tail {
		if t.data == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		dest := r.projectName + "/" + t.rel
		w, err := r.aw.Create(dest)
		if err != nil {
			return fmt.Errorf("assembly: create entry %s: %w", dest, err)
		}
		if _, err := w.Write(t.data); err != nil {
			return fmt.Errorf("assembly: write entry %s: %w", dest, err)
		}
		r.written[dest] = true
	}
	return nil
}

// mergeManifests merges the server and web manifests. A target with no
// base manifest in the core tree yields nil and its entry is omitted.
func (r *run) mergeManifests(res *resolver.Resolution) ([]byte, []byte, error) {
	var entries []manifest.Entry
	for _, f := range res.Features {
		for _, pkg := range f.NPMPackages {
			entries = append(entries, manifest.Entry{Feature: f.Slug, Pkg: pkg})
		}
	}

	server, err := r.renderManifest("backend/package.json", catalog.TargetServer, entries, res.Slugs)
	if err != nil {
		return nil, nil, err
	}
	web, err := r.renderManifest("web/package.json", catalog.TargetWeb, entries, res.Slugs)
	if err != nil {
		return nil, nil, err
	}
	return server, web, nil
}

func (r *run) renderManifest(rel string, target catalog.MappingTarget, entries []manifest.Entry, slugs []string) ([]byte, error) {
	base := r.readBaseManifest(rel)
	merged, warnings := manifest.Merge(base, target, entries, slugs)
	r.warnings = append(r.warnings, warnings...)
	if merged == nil {
		return nil, nil
	}
	data, err := merged.Canonical()
	if err != nil {
		return nil, fmt.Errorf("assembly: render %s: %w", rel, err)
	}
	return data, nil
}

// readBaseManifest loads a base package.json from the core tree. An absent
// file means no manifest for that target; a malformed one degrades to a
// warning and is treated as absent.
func (r *run) readBaseManifest(rel string) *manifest.Manifest {
	data, err := os.ReadFile(filepath.Join(r.engine.paths.CoreBase, filepath.FromSlash(rel)))
	if err != nil {
		return nil
	}
	m, err := manifest.ParseBase(data)
	if err != nil {
		r.warnf(diag.CodeMissingSource, rel, "base manifest unreadable: %v", err)
		return nil
	}
	return m
}

// sortByDirThenName orders slash paths by (directory, entry name).
func sortByDirThenName(entries []string) {
	sort.Slice(entries, func(i, j int) bool {
		di, ni := path.Split(entries[i])
		dj, nj := path.Split(entries[j])
		if di != dj {
			return di < dj
		}
		return ni < nj
	})
}
