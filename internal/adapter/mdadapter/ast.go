package mdadapter

import (
	"github.com/yuin/goldmark/ast"
)

var KindFileNode = ast.NewNodeKind("FileNode")

// FileNode is the {{ file }} directive resolved to the requested file name.
type FileNode struct {
	ast.BaseInline
	Filename string
}

func (n *FileNode) Kind() ast.NodeKind {
	return KindFileNode
}

func (n *FileNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Filename": n.Filename,
	}, nil)
}
