package page

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Severity of an in-page banner.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Banner is the warning shown at the top of a page.
type Banner struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

const bannerTitle = "⚠️ PhishGuard Warning"

// impersonatedBrands are names a credential form is likely to fake.
var impersonatedBrands = []string{
	"google", "gmail", "paypal", "amazon", "microsoft",
	"apple", "facebook", "instagram", "twitter", "bank",
}

// credentialInputs selects inputs that collect a login.
const credentialInputs = `input[type="password"], input[type="email"], input[name*="user"], input[name*="login"]`

// Document is a parsed page.
type Document struct {
	url *url.URL
	doc *goquery.Document
}

// Parse reads an HTML page served from pageURL.
func Parse(pageURL string, r io.Reader) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	return &Document{url: u, doc: doc}, nil
}

// DetectFakeLoginForm returns a danger banner when the page has a credential
// form and its text names a brand its hostname does not contain.
func (d *Document) DetectFakeLoginForm() *Banner {
	hasLoginForm := false
	d.doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		hasLoginForm = form.Find(credentialInputs).Length() > 0
		return !hasLoginForm
	})
	if !hasLoginForm {
		return nil
	}

	text := strings.ToLower(visibleText(d.doc.Find("body").Nodes))
	host := strings.ToLower(d.url.Hostname())
	for _, brand := range impersonatedBrands {
		if strings.Contains(text, brand) && !strings.Contains(host, brand) {
			msg := fmt.Sprintf("This page contains a %s login form but is not hosted on %s's official domain. "+
				"This could be a phishing attempt.", brand, brand)
			return &Banner{Title: bannerTitle, Message: msg, Severity: SeverityDanger}
		}
	}
	return nil
}

// Links returns the absolute http(s) targets of every a[href], in document
// order and without duplicates.
func (d *Document) Links() []string {
	seen := make(map[string]struct{})
	links := []string{}
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := d.url.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		target := abs.String()
		if _, ok := seen[target]; ok {
			return
		}
		seen[target] = struct{}{}
		links = append(links, target)
	})
	return links
}

// visibleText concatenates the text a user would see, skipping script-like
// elements.
func visibleText(nodes []*html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return b.String()
}
