package server

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var rewrittenAttrs = map[string]bool{
	"href":   true,
	"src":    true,
	"action": true,
}

// injectClient appends the reload client script to the document body and
// points absolute links at the proxy target back at the proxy. Markup
// without a <body> tag is returned unchanged.
func injectClient(body []byte, target *url.URL) ([]byte, bool, error) {
	if !bytes.Contains(bytes.ToLower(body), []byte("<body")) {
		return body, false, nil
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return body, false, err
	}

	var bodyNode *html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Body && bodyNode == nil {
				bodyNode = n
			}
			for i, attr := range n.Attr {
				if rewrittenAttrs[attr.Key] {
					n.Attr[i].Val = localizeURL(attr.Val, target)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if bodyNode == nil {
		return body, false, nil
	}

	bodyNode.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "src", Val: ClientPath},
			{Key: "async"},
		},
	})

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return body, false, err
	}
	return out.Bytes(), true, nil
}

// localizeURL strips the target's scheme and host from ref so the browser
// stays on the proxy.
func localizeURL(ref string, target *url.URL) string {
	for _, origin := range []string{
		target.Scheme + "://" + target.Host,
		"//" + target.Host,
	} {
		if !strings.HasPrefix(ref, origin) {
			continue
		}
		rest := ref[len(origin):]
		if rest == "" {
			return "/"
		}
		if rest[0] == '/' || rest[0] == '?' || rest[0] == '#' {
			return rest
		}
	}
	return ref
}
