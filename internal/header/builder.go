// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package header builds vendor header blocks and prepends them to staged
// Gerber files.
package header

import (
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the format of timestamps embedded in header templates.
const TimestampLayout = "2006-01-02 15:04:05"

// timestampPattern matches any YYYY-MM-DD HH:MM:SS substring.
var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// SubstituteTimestamp replaces every YYYY-MM-DD HH:MM:SS substring in line
// with now in the same layout. Lines without a timestamp are returned as-is.
func SubstituteTimestamp(line string, now time.Time) string {
	if !timestampPattern.MatchString(line) {
		return line
	}
	return timestampPattern.ReplaceAllLiteralString(line, now.Format(TimestampLayout))
}

// Builder composes a header from ordered text blocks. Blocks are joined
// with exactly one newline; a block is never split or trimmed.
type Builder struct {
	blocks []string
}

// Add appends blocks in order. Empty blocks are ignored.
func (b *Builder) Add(blocks ...string) *Builder {
	for _, block := range blocks {
		if block != "" {
			b.blocks = append(b.blocks, block)
		}
	}
	return b
}

// Line appends a single template line, keeping it even when empty so
// blank lines in a template survive into the header.
func (b *Builder) Line(line string) *Builder {
	b.blocks = append(b.blocks, line)
	return b
}

// Len returns the number of blocks.
func (b *Builder) Len() int { return len(b.blocks) }

// String returns the blocks joined by "\n", without a trailing newline.
func (b *Builder) String() string {
	return strings.Join(b.blocks, "\n")
}

// Prepend returns the header, a newline, then content unchanged. With no
// blocks, content is returned as-is.
func (b *Builder) Prepend(content []byte) []byte {
	if len(b.blocks) == 0 {
		return content
	}
	head := b.String()
	out := make([]byte, 0, len(head)+1+len(content))
	out = append(out, head...)
	out = append(out, '\n')
	return append(out, content...)
}
