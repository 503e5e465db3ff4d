// Package resolver closes a feature selection under the catalog's requires
// relation. The resulting order drives every downstream merge, so it is
// total: features sort by (module, slug) and never by selection order.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
)

// CycleError reports a requires cycle in the catalog. The cycle is listed in
// traversal order and closed on its first slug.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("resolver: requires cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Resolution is the closed feature set.
type Resolution struct {
	// Features sorted by (Module, Slug) ascending. This is the iteration
	// order for schema merging, manifest merging, and file mappings.
	Features []catalog.Feature
	// Slugs of every resolved feature, sorted lexicographically.
	Slugs []string
	// Tree maps each resolved slug to its direct requires.
	Tree map[string][]string
	// Warnings carries missing-requirement diagnostics; never fatal.
	Warnings []diag.Warning
}

// Resolver expands selections against a catalog.
type Resolver struct {
	catalog catalog.Reader
}

func New(reader catalog.Reader) *Resolver {
	return &Resolver{catalog: reader}
}

// Resolve seeds from the union of the explicit selection, the template's
// included features, and the tier's included features, then follows requires
// edges until the closure is stable. Slugs absent from the catalog degrade
// to warnings and contribute nothing. A requires cycle aborts with
// *CycleError.
func (r *Resolver) Resolve(ctx context.Context, selected []string, tier *catalog.Tier, tmpl *catalog.Template) (*Resolution, error) {
	seed := make(map[string]string)
	for _, s := range selected {
		seed[s] = "selection"
	}
	if tmpl != nil {
		for _, s := range tmpl.IncludedFeatures {
			if _, ok := seed[s]; !ok {
				seed[s] = "template " + tmpl.Slug
			}
		}
	}
	if tier != nil {
		for _, s := range tier.IncludedFeatures {
			if _, ok := seed[s]; !ok {
				seed[s] = "tier " + tier.Slug
			}
		}
	}

	known := make(map[string]catalog.Feature)
	requiredBy := seed
	missing := make(map[string]bool)
	var warnings []diag.Warning

	pending := make([]string, 0, len(seed))
	for s := range seed {
		pending = append(pending, s)
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		batch, err := r.catalog.Features(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("resolver: fetch features: %w", err)
		}
		for _, f := range batch {
			known[f.Slug] = f
		}
		for _, slug := range pending {
			if _, ok := known[slug]; !ok && !missing[slug] {
				missing[slug] = true
				warnings = append(warnings, diag.Warningf(diag.CodeMissingRequirement, slug,
					"feature not in catalog (required by %s)", requiredBy[slug]))
			}
		}

		next := make(map[string]bool)
		for _, f := range batch {
			for _, req := range f.Requires {
				if _, ok := known[req]; ok || missing[req] {
					continue
				}
				next[req] = true
				if _, ok := requiredBy[req]; !ok {
					requiredBy[req] = "feature " + f.Slug
				}
			}
		}
		pending = pending[:0]
		for s := range next {
			pending = append(pending, s)
		}
		sort.Strings(pending)
	}

	if cycle := findCycle(known); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	res := &Resolution{Tree: make(map[string][]string, len(known))}
	for slug, f := range known {
		res.Features = append(res.Features, f)
		res.Slugs = append(res.Slugs, slug)
		res.Tree[slug] = append([]string(nil), f.Requires...)
	}
	sort.Slice(res.Features, func(i, j int) bool {
		a, b := res.Features[i], res.Features[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Slug < b.Slug
	})
	sort.Strings(res.Slugs)
	res.Warnings = warnings
	return res, nil
}

// findCycle runs a three-state depth-first search over the requires graph
// and returns the first cycle found, or nil. Roots are visited in sorted
// order so the reported cycle is stable.
func findCycle(features map[string]catalog.Feature) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(features))

	roots := make([]string, 0, len(features))
	for s := range features {
		roots = append(roots, s)
	}
	sort.Strings(roots)

	var path []string
	var walk func(slug string) []string
	walk = func(slug string) []string {
		color[slug] = gray
		path = append(path, slug)
		for _, req := range features[slug].Requires {
			if _, ok := features[req]; !ok {
				continue
			}
			switch color[req] {
			case gray:
				start := 0
				for i, s := range path {
					if s == req {
						start = i
						break
					}
				}
				return append(append([]string(nil), path[start:]...), req)
			case white:
				if c := walk(req); c != nil {
					return c
				}
			}
		}
		color[slug] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, root := range roots {
		if color[root] != white {
			continue
		}
		path = path[:0]
		if c := walk(root); c != nil {
			return c
		}
	}
	return nil
}
