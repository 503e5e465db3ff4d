package schema

import (
	"strings"

	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
)

// Fragment is one feature-contributed schema file, already read from disk.
type Fragment struct {
	Feature string
	Source  string
	Text    string
}

// Result is the consolidated schema plus the declaration names in emission
// order, split by kind.
type Result struct {
	Schema   string
	Models   []string
	Enums    []string
	Warnings []diag.Warning
}

// Validation reports whether a merged schema declares every required model.
type Validation struct {
	Valid   bool
	Missing []string
}

// synthesizedHeader stands in when no base schema exists at all.
const synthesizedHeader = `generator client {
  provider = "prisma-client-js"
}

datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}`

// Merge combines the base schema with feature fragments. Generator and
// datasource blocks come exclusively from the base; base models and enums
// keep their order; fragment blocks are appended in fragment order unless
// their declared name was already emitted, in which case the duplicate is
// dropped with a warning. Names occupy a single namespace across models and
// enums, matching Prisma's type namespace.
func Merge(base string, fragments []Fragment) Result {
	var res Result
	var out []string
	seen := make(map[string]BlockKind)

	emit := func(b Block, source string) {
		if prior, dup := seen[b.Name]; dup {
			res.Warnings = append(res.Warnings, diag.Warningf(diag.CodeSchemaDuplicate, source,
				"duplicate %s %q suppressed, %s keeps the name (first declared wins)", b.Kind, b.Name, prior))
			return
		}
		seen[b.Name] = b.Kind
		out = append(out, b.Text)
		switch b.Kind {
		case KindModel:
			res.Models = append(res.Models, b.Name)
		case KindEnum:
			res.Enums = append(res.Enums, b.Name)
		}
	}

	if strings.TrimSpace(base) == "" {
		out = append(out, synthesizedHeader)
	} else {
		blocks := ParseBlocks(base)
		for _, b := range blocks {
			if b.Kind == KindGenerator || b.Kind == KindDatasource {
				out = append(out, b.Text)
			}
		}
		for _, b := range blocks {
			if b.Kind == KindModel || b.Kind == KindEnum {
				emit(b, "schema.prisma")
			}
		}
	}

	for _, f := range fragments {
		for _, b := range ParseBlocks(f.Text) {
			if b.Kind != KindModel && b.Kind != KindEnum {
				continue
			}
			emit(b, f.Source)
		}
	}

	res.Schema = strings.Join(out, "\n\n") + "\n"
	return res
}

// Validate checks that every required model name was emitted.
func Validate(res Result, required []string) Validation {
	declared := make(map[string]bool, len(res.Models))
	for _, m := range res.Models {
		declared[m] = true
	}
	v := Validation{Valid: true}
	for _, name := range required {
		if !declared[name] {
			v.Valid = false
			v.Missing = append(v.Missing, name)
		}
	}
	return v
}
