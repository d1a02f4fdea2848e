package model

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// documentNamespace scopes document IDs so they never collide with UUIDs
// minted for other purposes.
var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:sqextract:document"))

// Document represents a tokenized input document. It is created by the
// tokenizer and discarded after one extraction run.
type Document struct {
	ID    string
	Pages []*Page
}

// NewDocument creates an empty document with the given ID
func NewDocument(id string) *Document {
	return &Document{
		ID:    id,
		Pages: make([]*Page, 0),
	}
}

// DocumentID derives a stable identifier from the raw document bytes.
// Identical input always yields the identical ID.
func DocumentID(data []byte) string {
	sum := sha256.Sum256(data)
	return uuid.NewSHA1(documentNamespace, sum[:]).String()
}

// AddPage adds a page to the document
func (d *Document) AddPage(page *Page) {
	d.Pages = append(d.Pages, page)
}

// GetPage returns a page by index (0-based)
func (d *Document) GetPage(index int) *Page {
	if index < 0 || index >= len(d.Pages) {
		return nil
	}
	return d.Pages[index]
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// TokenCount returns the total number of tokens across all pages
func (d *Document) TokenCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Tokens)
	}
	return n
}

// TextTokens returns every text token in document reading order
func (d *Document) TextTokens() []Token {
	var out []Token
	for _, p := range d.Pages {
		out = append(out, p.TextTokens()...)
	}
	return out
}
