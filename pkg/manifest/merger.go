package manifest

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
)

// Entry is one npm package contribution with its owning feature, in the
// deterministic feature iteration order. That order decides which version
// wins when the base manifest is silent.
type Entry struct {
	Feature string
	Pkg     catalog.PackageSpec
}

type origin struct {
	version string
	from    string
}

// Merge unions base with the entries whose target matches. The base version
// always wins; otherwise the first entry to declare a (name, kind) wins and
// later different versions produce a dependency_conflict warning. Identical
// redeclarations merge silently. Scripts gain one sorted codegen hook per
// resolved feature slug; base script names win collisions.
//
// A nil base means the target has no manifest at all (legal for web-less
// projects); Merge returns nil and the caller omits the file.
func Merge(base *Manifest, target catalog.MappingTarget, entries []Entry, featureSlugs []string) (*Manifest, []diag.Warning) {
	if base == nil {
		return nil, nil
	}

	merged := &Manifest{
		Name:             base.Name,
		Version:          base.Version,
		Scripts:          copyMap(base.Scripts),
		Dependencies:     copyMap(base.Dependencies),
		DevDependencies:  copyMap(base.DevDependencies),
		PeerDependencies: copyMap(base.PeerDependencies),
	}

	kinds := map[catalog.PackageKind]map[string]string{
		catalog.KindRuntime: merged.Dependencies,
		catalog.KindDev:     merged.DevDependencies,
		catalog.KindPeer:    merged.PeerDependencies,
	}
	origins := map[catalog.PackageKind]map[string]origin{
		catalog.KindRuntime: baseOrigins(base.Dependencies),
		catalog.KindDev:     baseOrigins(base.DevDependencies),
		catalog.KindPeer:    baseOrigins(base.PeerDependencies),
	}

	var warnings []diag.Warning
	for _, e := range entries {
		if e.Pkg.ManifestTarget() != target {
			continue
		}
		kind := e.Pkg.Kind
		deps, ok := kinds[kind]
		if !ok {
			continue
		}
		prior, declared := origins[kind][e.Pkg.Name]
		if !declared {
			deps[e.Pkg.Name] = e.Pkg.Version
			origins[kind][e.Pkg.Name] = origin{version: e.Pkg.Version, from: e.Feature}
			continue
		}
		if prior.version == e.Pkg.Version {
			continue
		}
		warnings = append(warnings, diag.Warningf(diag.CodeDependencyConflict, e.Pkg.Name,
			"%s", conflictDetail(e.Pkg.Name, string(kind), prior, e.Feature, e.Pkg.Version)))
	}

	sorted := append([]string(nil), featureSlugs...)
	sort.Strings(sorted)
	for _, slug := range sorted {
		name := "codegen:" + slug
		if _, exists := base.Scripts[name]; exists {
			continue
		}
		merged.Scripts[name] = "starter codegen " + slug
	}

	return merged, warnings
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func baseOrigins(m map[string]string) map[string]origin {
	out := make(map[string]origin, len(m))
	for name, version := range m {
		out[name] = origin{version: version, from: "base"}
	}
	return out
}

// conflictDetail describes a dropped version. When the kept declaration
// parses as a semver range and the dropped one as a version, the detail says
// whether the dropped version would still be satisfied, which separates
// benign overlaps from real divergence.
func conflictDetail(name, kind string, kept origin, feature, rejected string) string {
	detail := fmt.Sprintf("%s %s: kept %s from %s, dropped %s from feature %s",
		kind, name, kept.version, kept.from, rejected, feature)

	c, cerr := semver.NewConstraint(kept.version)
	v, verr := semver.NewVersion(rejected)
	if cerr != nil || verr != nil {
		return detail
	}
	if c.Check(v) {
		return detail + " (dropped version satisfies kept range)"
	}
	return detail + " (dropped version outside kept range)"
}
