package templates

import (
	"bytes"
	_ "embed"
)

//go:embed catalogs/default.yaml
var defaultCatalog []byte

// Default returns a fresh copy of the built-in catalog: the standard SQ
// layout and the older single-column header layout.
func Default() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic("templates: built-in catalog is invalid: " + err.Error())
	}
	return c
}
