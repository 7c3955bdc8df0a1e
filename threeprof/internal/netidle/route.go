package netidle

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/3jsLive/tasks/safepath"
)

// Substitution is a synthetic 200 response.
type Substitution struct {
	ContentType string
	Body        []byte
}

// Route decides how a request for url is answered. ok is false when the
// request should continue unmodified. A substituted library bundle flips
// the intercepted flag.
func (g *Gate) Route(url string) (Substitution, bool, error) {
	if g.opts.MainScript != "" && strings.HasSuffix(url, g.opts.MainScript) {
		g.MarkIntercepted()
		g.opts.Logger.Debug("netidle: bundle intercepted", "url", url)
		return Substitution{ContentType: "text/javascript", Body: g.opts.Bundle}, true, nil
	}
	if g.opts.ExamplePattern == nil {
		return Substitution{}, false, nil
	}
	m := g.opts.ExamplePattern.FindString(url)
	if m == "" {
		return Substitution{}, false, nil
	}
	path, err := safepath.Join(g.opts.RepoRoot, m)
	if err != nil {
		return Substitution{}, false, fmt.Errorf("netidle: example %s: %w", m, err)
	}
	page, err := os.ReadFile(path)
	if err != nil {
		return Substitution{}, false, fmt.Errorf("netidle: example: %w", err)
	}
	body, err := InjectScript(page, g.opts.PageScript)
	if err != nil {
		return Substitution{}, false, err
	}
	g.opts.Logger.Debug("netidle: example intercepted", "url", url)
	return Substitution{ContentType: "text/html", Body: body}, true, nil
}

// InjectScript appends an inline <script> holding code as the last child
// of <head>. An empty code returns page unchanged.
func InjectScript(page []byte, code string) ([]byte, error) {
	if code == "" {
		return page, nil
	}
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("netidle: parse page: %w", err)
	}
	head := findHead(doc)
	if head == nil {
		return nil, fmt.Errorf("netidle: page has no head")
	}
	script := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "type", Val: "text/javascript"}},
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: code})
	head.AppendChild(script)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("netidle: render page: %w", err)
	}
	return buf.Bytes(), nil
}

func findHead(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Head {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := findHead(c); h != nil {
			return h
		}
	}
	return nil
}
