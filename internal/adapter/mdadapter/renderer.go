package mdadapter

import (
	"fmt"
	"html"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const unknownFile = "this file"

type fileNodeRenderer struct{}

func NewFileNodeRenderer() renderer.NodeRenderer {
	return &fileNodeRenderer{}
}

func (r *fileNodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindFileNode, r.renderFileNode)
}

func (r *fileNodeRenderer) renderFileNode(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	node, ok := n.(*FileNode)
	if !ok {
		return ast.WalkStop, fmt.Errorf("unexpected node %T, expected *FileNode", n)
	}

	name := node.Filename
	if name == "" {
		name = unknownFile
	}

	if _, err := fmt.Fprintf(w, `<code class="file">%s</code>`, html.EscapeString(name)); err != nil {
		return ast.WalkStop, err
	}

	return ast.WalkContinue, nil
}
