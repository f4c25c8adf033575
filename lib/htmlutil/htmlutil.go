package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "noscript", "template":
			return
		case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "table":
			defer buffer.WriteByte('\n')
		case "td", "th":
			defer buffer.WriteByte(' ')
		}
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLines = regexp.MustCompile(`\n\s*\n+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || c == '\n' || c == ' ' {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// PageText extracts the human readable text of an html document, scripts
// and styles are dropped, block elements are put on their own lines.
func PageText(document string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", err
	}

	var buffer bytes.Buffer
	for _, node := range doc.Find("body").Nodes {
		getTextRecursive(node, &buffer)
	}

	text := strings.ReplaceAll(buffer.String(), "\u00a0", " ")
	text = innerWhitespace.ReplaceAllString(text, " ")
	text = removeNonPrintable(text)

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.Trim(text, " \n"), nil
}

// Title returns the trimmed contents of the <title> element.
func Title(document string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
