package render

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultLinkTarget opens links in the same browsing context.
const DefaultLinkTarget = "self"

// Markdown renders message text to HTML. Every link gets
// target="_<linkTarget>" and rel="nofollow"; raw HTML is escaped.
type Markdown struct {
	md     goldmark.Markdown
	target string
}

func NewMarkdown(linkTarget string) *Markdown {
	linkTarget = strings.TrimPrefix(strings.TrimSpace(linkTarget), "_")
	if linkTarget == "" {
		linkTarget = DefaultLinkTarget
	}
	target := "_" + linkTarget
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(&linkPolicy{target: []byte(target)}, 100)),
		),
	)
	return &Markdown{md: md, target: target}
}

// Target is the resolved target attribute value, e.g. "_self".
func (m *Markdown) Target() string { return m.target }

func (m *Markdown) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return buf.String(), nil
}

type linkPolicy struct {
	target []byte
}

var _ parser.ASTTransformer = &linkPolicy{}

func (p *linkPolicy) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Link, *ast.AutoLink:
			n.SetAttributeString("target", p.target)
			n.SetAttributeString("rel", []byte("nofollow"))
		}
		return ast.WalkContinue, nil
	})
}
