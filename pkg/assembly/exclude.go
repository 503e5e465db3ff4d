package assembly

import "strings"

// Exclusion rules for tree copies, matched against basenames only.
var (
	excludedDirs = map[string]bool{
		".git":             true,
		"node_modules":     true,
		"dist":             true,
		"build":            true,
		".preview-sandbox": true,
	}

	excludedFiles = map[string]bool{
		".env":      true,
		".DS_Store": true,
		"Thumbs.db": true,
		// preview scaffolding
		"preview.config.ts":          true,
		"preview.config.js":          true,
		"docker-compose.preview.yml": true,
	}
)

func excludeDir(name string) bool {
	return excludedDirs[name]
}

func excludeFile(name string) bool {
	return excludedFiles[name] || strings.HasSuffix(name, ".log")
}
