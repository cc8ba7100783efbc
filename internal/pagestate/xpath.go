package pagestate

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// XPath builds the same locator the live extraction script does: an id
// anchor when the node or an ancestor has an id, otherwise a positional path
// from the root through same-tag siblings. Indices are 1-based.
func XPath(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return ""
	}

	var path []string
	for n := node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if id := attr(n, "id"); id != "" {
			path = append(path, fmt.Sprintf(`//*[@id="%s"]`, id))
			break
		}
		if n.DataAtom == atom.Body {
			path = append(path, "/html/body")
			break
		}
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			path = append(path, "/"+strings.ToLower(n.Data))
			break
		}

		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, n.Data) {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", strings.ToLower(n.Data), index))
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, "/")
}
