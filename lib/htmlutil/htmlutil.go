package htmlutil

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("certassist.lib.htmlutil")

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
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// LabelRow is a label/value pair lifted from a rendered table row,
// e.g. <tr><th>Applicant Name</th><td>Kokilavani V</td></tr>.
type LabelRow struct {
	Label string
	Value string
}

// GetLabelRows harvests label/value pairs from every table row of the
// markup. Rows whose first cell is empty, or which carry no second cell,
// are skipped. Rows with four cells produce two pairs (the portal renders
// some composite rows that way).
func GetLabelRows(ctx context.Context, markup string) ([]LabelRow, error) {
	ctx, span := tracer.Start(ctx, "GetLabelRows")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var rows []LabelRow
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, CleanText(cell.Text()))
		})
		for i := 0; i+1 < len(cells); i += 2 {
			if cells[i] == "" {
				continue
			}
			rows = append(rows, LabelRow{Label: cells[i], Value: cells[i+1]})
		}
	})

	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

// HasAnyMatch reports whether any of the selectors matches the markup.
func HasAnyMatch(ctx context.Context, markup string, selectors []string) (bool, error) {
	ctx, span := tracer.Start(ctx, "HasAnyMatch")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false, err
	}

	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			span.AddEvent("matched", trace.WithAttributes(attribute.String("selector", sel)))
			return true, nil
		}
	}
	return false, nil
}
