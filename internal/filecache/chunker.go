package filecache

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxChunks is the most chunks scanOnStartup keeps per file (spec §4.8).
const MaxChunks = 5

// MaxChunkLen is the per-chunk character cap (spec §4.8).
const MaxChunkLen = 400

var markdownParser = goldmark.DefaultParser()

// chunkMarkdown splits content by heading boundaries using goldmark's
// AST, falling back to blank-line paragraph boundaries when the
// document has no top-level headings, then truncates to MaxChunks
// chunks of at most MaxChunkLen characters each.
func chunkMarkdown(content string) []string {
	src := []byte(content)
	doc := markdownParser.Parse(text.NewReader(src))

	var bounds []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindHeading {
			if lines := n.Lines(); lines.Len() > 0 {
				bounds = append(bounds, lines.At(0).Start)
			}
		}
	}

	var sections []string
	if len(bounds) == 0 {
		sections = splitOnBlankLines(content)
	} else {
		for i, start := range bounds {
			end := len(src)
			if i+1 < len(bounds) {
				end = bounds[i+1]
			}
			sections = append(sections, strings.TrimSpace(string(src[start:end])))
		}
	}

	var chunks []string
	for _, s := range sections {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > MaxChunkLen {
			s = s[:MaxChunkLen]
		}
		chunks = append(chunks, s)
		if len(chunks) >= MaxChunks {
			break
		}
	}
	return chunks
}

func splitOnBlankLines(content string) []string {
	var out []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}
