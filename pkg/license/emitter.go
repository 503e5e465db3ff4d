package license

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
)

const legalBody = `## Grant of License

Subject to full payment of the order above, the licensee is granted a
non-exclusive, non-transferable, perpetual license to use, modify, and build
upon the generated source code for the licensee's own applications, whether
commercial or internal.

## Restrictions

The licensee may not resell, sublicense, or redistribute the starter kit
itself, in original or modified form, as a competing template, boilerplate,
or code generator. Attribution is not required in derived applications.

## Ownership

The generated code is licensed, not sold. All rights not expressly granted
are reserved by the issuer identified on the order.

## Warranty Disclaimer

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY AND
FITNESS FOR A PARTICULAR PURPOSE.

## Limitation of Liability

IN NO EVENT SHALL THE ISSUER BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY ARISING FROM THE USE OF THE SOFTWARE OR THE GENERATED CODE.
`

// RenderLicense emits LICENSE.md. The issue date is the UTC calendar day of
// the captured generation time, so regenerated archives stay identical.
func RenderLicense(o order.Details, issuedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# Commercial License\n\n")
	fmt.Fprintf(&b, "License Key: %s\n", o.License.Key)
	fmt.Fprintf(&b, "Order: %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "Licensed To: %s\n", licensee(o))
	fmt.Fprintf(&b, "Tier: %s\n", displayName(o.Tier))
	fmt.Fprintf(&b, "Issued: %s\n\n", issuedAt.UTC().Format("2006-01-02"))
	b.WriteString(legalBody)
	return b.String()
}

// RenderReadme emits README.md: header, feature list grouped by module in
// resolution order, and setup steps. templateName may be empty, in which
// case the order's template slug (or "Starter") is prettified instead.
func RenderReadme(o order.Details, templateName string, features []catalog.Feature, generatedAt time.Time) string {
	if templateName == "" {
		if o.Template != "" {
			templateName = displayName(o.Template)
		} else {
			templateName = "Starter"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s (%s)\n\n", templateName, displayName(o.Tier))
	fmt.Fprintf(&b, "Generated at %s for order %s.\n\n", generatedAt.UTC().Format(time.RFC3339), o.OrderNumber)

	if len(features) > 0 {
		b.WriteString("## Features\n")
		module := ""
		for _, f := range features {
			if f.Module != module {
				module = f.Module
				fmt.Fprintf(&b, "\n### %s\n\n", displayName(module))
			}
			if f.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
			} else {
				fmt.Fprintf(&b, "- %s\n", f.Name)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(`## Getting Started

1. Copy backend/.env.example to backend/.env and fill in the required values.
2. Install dependencies: npm install in backend/ (and web/ if present).
3. Apply the database schema: npx prisma migrate dev inside backend/.
4. Start the dev server: npm run dev.

See starter-config.json for the exact feature set this archive was built
with, and LICENSE.md for usage terms.
`)
	return b.String()
}

// RenderConfig emits starter-config.json: canonical JSON, sorted keys,
// 2-space indent, trailing newline.
func RenderConfig(o order.Details, features []catalog.Feature, generatedAt time.Time) ([]byte, error) {
	slugs := make([]string, 0, len(features))
	for _, f := range features {
		slugs = append(slugs, f.Slug)
	}

	var tmpl any
	if o.Template != "" {
		tmpl = o.Template
	}
	ts := generatedAt.UTC().Format(time.RFC3339)

	cfg := map[string]any{
		"tier":     o.Tier,
		"template": tmpl,
		"features": slugs,
		"license": map[string]any{
			"key":           o.License.Key,
			"issuedAt":      ts,
			"orderNumber":   o.OrderNumber,
			"customerEmail": o.CustomerEmail,
		},
		"generatedAt": ts,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("license: render config: %w", err)
	}
	return append(data, '\n'), nil
}

func licensee(o order.Details) string {
	if o.CustomerName != "" {
		return fmt.Sprintf("%s <%s>", o.CustomerName, o.CustomerEmail)
	}
	return o.CustomerEmail
}

// displayName prettifies a slug: dashes to spaces, words title-cased.
func displayName(slug string) string {
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(slug, "-", " "))
}
