package mdadapter

import (
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// FileNameKey holds the requested file name in the parser context.
var FileNameKey = parser.NewContextKey()

var fileDirective = regexp.MustCompile(`^{{\s*file\s*}}`)

type fileDirectiveParser struct{}

func NewFileDirectiveParser() parser.InlineParser {
	return &fileDirectiveParser{}
}

func (s *fileDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *fileDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	m := fileDirective.FindSubmatch(line)
	if m == nil {
		return nil
	}

	block.Advance(len(m[0]))

	name, _ := pc.Get(FileNameKey).(string)

	return &FileNode{Filename: name}
}
