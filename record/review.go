package record

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tsawler/sqextract/model"
)

const reviewStyle = `body{font-family:sans-serif;margin:2em}
table{border-collapse:collapse;margin-bottom:1.5em}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left;vertical-align:top}
.flagged{background:#fff4ce}.failed{background:#fde7e9}`

// WriteReview renders an HTML review sheet listing, per record, the issues
// and every field that is not ok, with the raw text it was read from.
func WriteReview(w io.Writer, records []*StructuredRecord) error {
	body := element(atom.Body)
	body.AppendChild(textElement(atom.H1, "Quotation review"))

	for _, r := range records {
		body.AppendChild(reviewSection(r))
	}

	head := element(atom.Head)
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	head.AppendChild(meta)
	head.AppendChild(textElement(atom.Title, "Quotation review"))
	head.AppendChild(textElement(atom.Style, reviewStyle))

	root := element(atom.Html)
	root.AppendChild(head)
	root.AppendChild(body)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)
	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("rendering review sheet: %w", err)
	}
	return nil
}

func reviewSection(r *StructuredRecord) *html.Node {
	section := element(atom.Section)
	title := r.DocumentID
	if r.Project.QuotationNo != nil {
		title = *r.Project.QuotationNo + " (" + r.DocumentID + ")"
	}
	section.AppendChild(textElement(atom.H2, title))

	status := fmt.Sprintf("Status: %s, confidence %.2f", r.Status, r.Confidence)
	if r.Template != nil {
		status += fmt.Sprintf(", template %s v%s", r.Template.Name, r.Template.Version)
	}
	section.AppendChild(textElement(atom.P, status))

	if len(r.Issues) > 0 {
		section.AppendChild(textElement(atom.H3, "Issues"))
		t := table("Field", "Kind", "Message")
		for _, iss := range r.Issues {
			addRow(t, "", iss.FieldPath, string(iss.Kind), iss.Message)
		}
		section.AppendChild(t)
	}

	paths := make([]string, 0, len(r.Provenance))
	for path, p := range r.Provenance {
		if p.Status != model.StatusOK {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		section.AppendChild(textElement(atom.P, "No fields need review."))
		return section
	}
	sort.Strings(paths)

	section.AppendChild(textElement(atom.H3, "Fields to check"))
	t := table("Field", "Status", "Raw text", "Source", "Confidence", "Page")
	for _, path := range paths {
		p := r.Provenance[path]
		addRow(t, string(p.Status), path, string(p.Status), p.Raw, string(p.Source),
			fmt.Sprintf("%.2f", p.Confidence), fmt.Sprint(p.Page+1))
	}
	section.AppendChild(t)
	return section
}

func table(headers ...string) *html.Node {
	t := element(atom.Table)
	tr := element(atom.Tr)
	for _, h := range headers {
		tr.AppendChild(textElement(atom.Th, h))
	}
	t.AppendChild(tr)
	return t
}

func addRow(t *html.Node, class string, cells ...string) {
	tr := element(atom.Tr)
	if class != "" {
		tr.Attr = []html.Attribute{{Key: "class", Val: class}}
	}
	for _, c := range cells {
		tr.AppendChild(textElement(atom.Td, strings.TrimSpace(c)))
	}
	t.AppendChild(tr)
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func textElement(a atom.Atom, s string) *html.Node {
	n := element(a)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	return n
}
