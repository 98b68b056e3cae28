// Package static implements a read-only browser.Agent over parsed HTML. It
// cannot run scripts or submit forms, but it exposes exactly what the
// locators see, which makes it the offline inspection and fixture browser.
package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/autopass/internal/browser"
)

// Loader fetches the document behind a location.
type Loader func(ctx context.Context, location string) (io.ReadCloser, error)

// FileLoader reads local files. A file:// prefix is accepted.
func FileLoader(_ context.Context, location string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(location, "file://"))
}

// HTTPLoader fetches pages with client without running any scripts.
func HTTPLoader(client *http.Client) Loader {
	return func(ctx context.Context, location string) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: %s", location, resp.Status)
		}
		return resp.Body, nil
	}
}

// AutoLoader uses HTTP for http(s) locations and the filesystem otherwise.
func AutoLoader(client *http.Client) Loader {
	fetch := HTTPLoader(client)
	return func(ctx context.Context, location string) (io.ReadCloser, error) {
		if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
			return fetch(ctx, location)
		}
		return FileLoader(ctx, location)
	}
}

// ReaderLoader serves the same document for every location.
func ReaderLoader(doc string) Loader {
	return func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(doc)), nil
	}
}

// Agent is a read-only browser.Agent.
type Agent struct {
	load   Loader
	logger *zap.Logger

	url  string
	doc  *html.Node
	refs map[*html.Node]browser.ElementRef
	raw  string
}

var _ browser.Agent = (*Agent)(nil)

// New creates an Agent that reads pages through load.
func New(load Loader, logger *zap.Logger) *Agent {
	return &Agent{load: load, logger: logger.Named("static_agent")}
}

// Navigate loads and parses the document. Every element gets a stable
// reference in document order.
func (a *Agent) Navigate(ctx context.Context, location string) error {
	rc, err := a.load(ctx, location)
	if err != nil {
		return fmt.Errorf("loading %s: %w", location, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading %s: %w", location, err)
	}
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", location, err)
	}

	a.url, a.doc, a.raw = location, doc, string(data)
	a.refs = make(map[*html.Node]browser.ElementRef)
	seq := 0
	walk(doc, func(n *html.Node) {
		seq++
		a.refs[n] = browser.ElementRef("s-" + strconv.Itoa(seq))
	})
	a.logger.Debug("Parsed page.", zap.String("url", location), zap.Int("elements", seq))
	return nil
}

func (a *Agent) refOf(n *html.Node) browser.ElementRef { return a.refs[n] }

func (a *Agent) loaded() error {
	if a.doc == nil {
		return errors.New("static agent: no page loaded")
	}
	return nil
}

// FindInputs lists input elements in document order. A missing type
// attribute reports as "text", the HTML default.
func (a *Agent) FindInputs(ctx context.Context) ([]browser.InputDescriptor, error) {
	if err := a.loaded(); err != nil {
		return nil, err
	}
	var out []browser.InputDescriptor
	walk(a.doc, func(n *html.Node) {
		if n.DataAtom == atom.Input {
			out = append(out, a.describeInput(n))
		}
	})
	return out, nil
}

func (a *Agent) describeInput(n *html.Node) browser.InputDescriptor {
	typ, ok := attr(n, "type")
	if !ok || typ == "" {
		typ = "text"
	}
	return browser.InputDescriptor{
		Ref:         a.refOf(n),
		Type:        typ,
		Name:        attrOr(n, "name"),
		ID:          attrOr(n, "id"),
		Placeholder: attrOr(n, "placeholder"),
		AriaLabel:   attrOr(n, "aria-label"),
	}
}

var submitWords = []string{"submit", "login"}

// FindClickable lists buttons, submit and button inputs, role=button
// elements, and anything whose id, class, aria-label or own text mentions
// submit or login.
func (a *Agent) FindClickable(ctx context.Context) ([]browser.ClickableDescriptor, error) {
	if err := a.loaded(); err != nil {
		return nil, err
	}
	var out []browser.ClickableDescriptor
	walk(a.doc, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Html, atom.Head, atom.Body, atom.Script, atom.Style, atom.Title, atom.Meta, atom.Link:
			return
		}
		typ := strings.ToLower(attrOr(n, "type"))
		own := ownText(n)
		clickable := n.DataAtom == atom.Button ||
			strings.EqualFold(attrOr(n, "role"), "button") ||
			(n.DataAtom == atom.Input && (typ == "submit" || typ == "button"))
		if !clickable {
			for _, v := range []string{attrOr(n, "id"), attrOr(n, "class"), attrOr(n, "aria-label"), own} {
				if containsAny(strings.ToLower(v), submitWords) {
					clickable = true
					break
				}
			}
		}
		if !clickable {
			return
		}

		text := own
		if n.DataAtom == atom.Button {
			text = strings.TrimSpace(textContent(n))
		}
		out = append(out, browser.ClickableDescriptor{
			Ref:       a.refOf(n),
			Tag:       n.Data,
			Type:      typ,
			Role:      attrOr(n, "role"),
			ID:        attrOr(n, "id"),
			Class:     attrOr(n, "class"),
			AriaLabel: attrOr(n, "aria-label"),
			Text:      text,
			Value:     attrOr(n, "value"),
		})
	})
	return out, nil
}

// Query resolves a CSS selector to the first matching input.
func (a *Agent) Query(ctx context.Context, selector string) (browser.InputDescriptor, error) {
	if err := a.loaded(); err != nil {
		return browser.InputDescriptor{}, err
	}
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return browser.InputDescriptor{}, fmt.Errorf("parsing selector %q: %w", selector, err)
	}
	for _, n := range cascadia.QueryAll(a.doc, sel) {
		if n.DataAtom == atom.Input {
			return a.describeInput(n), nil
		}
	}
	return browser.InputDescriptor{}, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
}

func (a *Agent) SetValue(context.Context, browser.ElementRef, string) error {
	return browser.ErrReadOnly
}

func (a *Agent) Click(context.Context, browser.ElementRef) error { return browser.ErrReadOnly }

func (a *Agent) SendKey(context.Context, browser.ElementRef, browser.Key) error {
	return browser.ErrReadOnly
}

func (a *Agent) SubmitForm(context.Context, browser.ElementRef) error { return browser.ErrReadOnly }

func (a *Agent) CurrentURL(context.Context) (string, error) { return a.url, nil }

func (a *Agent) PageContent(context.Context) (string, error) { return a.raw, nil }

func (a *Agent) Close(context.Context) error {
	a.doc, a.refs = nil, nil
	return nil
}

// -- DOM helpers --

// walk visits element nodes in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, at := range n.Attr {
		if at.Namespace == "" && at.Key == key {
			return at.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

// ownText is the element's direct text children, trimmed.
func ownText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
