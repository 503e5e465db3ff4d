// Package schema merges the base Prisma schema with per-feature fragments
// into one consolidated datamodel. Parsing is block-level only: the merger
// needs block boundaries and declared names, never field semantics.
package schema

import (
	"regexp"
	"strings"
)

// BlockKind is one of the four top-level Prisma block keywords.
type BlockKind string

const (
	KindGenerator  BlockKind = "generator"
	KindDatasource BlockKind = "datasource"
	KindModel      BlockKind = "model"
	KindEnum       BlockKind = "enum"
)

// Block is one top-level declaration, captured verbatim from header line
// through closing brace.
type Block struct {
	Kind BlockKind
	Name string
	Text string
}

var blockHeader = regexp.MustCompile(`^(generator|datasource|model|enum)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\{`)

// ParseBlocks scans src line by line and returns its top-level blocks in
// order of appearance. Content outside recognized blocks (comments, blank
// lines) is skipped. An unterminated block extends to end of input.
func ParseBlocks(src string) []Block {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	lines := strings.Split(src, "\n")

	var blocks []Block
	for i := 0; i < len(lines); i++ {
		m := blockHeader.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		depth := 0
		start := i
		for ; i < len(lines); i++ {
			depth += braceDelta(lines[i])
			if depth <= 0 {
				break
			}
		}
		end := i
		if end >= len(lines) {
			end = len(lines) - 1
		}
		blocks = append(blocks, Block{
			Kind: BlockKind(m[1]),
			Name: m[2],
			Text: strings.Join(lines[start:end+1], "\n"),
		})
	}
	return blocks
}

// braceDelta counts net brace depth on one line, ignoring braces inside
// double-quoted strings and after // comments.
func braceDelta(line string) int {
	depth := 0
	inString := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return depth
		case c == '{':
			depth++
		case c == '}':
			depth--
		}
	}
	return depth
}
