package templates

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid template catalog")

// Catalog is an ordered, immutable set of template variants. Order matters:
// ties between equally scoring variants go to the earlier one.
type Catalog struct {
	Variants []*Variant `yaml:"variants"`
}

// NewCatalog builds and validates a catalog from variants
func NewCatalog(variants ...*Variant) (*Catalog, error) {
	c := &Catalog{Variants: variants}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every variant and that variant names are unique
func (c *Catalog) Validate() error {
	if c == nil || len(c.Variants) == 0 {
		return fmt.Errorf("%w: no variants", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Variants))
	for _, v := range c.Variants {
		if v == nil {
			return fmt.Errorf("%w: nil variant", ErrInvalidCatalog)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
		key := v.Name + "@" + v.Version
		if seen[key] {
			return fmt.Errorf("%w: duplicate variant %s", ErrInvalidCatalog, key)
		}
		seen[key] = true
	}
	return nil
}

// With returns a new catalog holding c's variants followed by variants.
// c is not modified.
func (c *Catalog) With(variants ...*Variant) (*Catalog, error) {
	all := make([]*Variant, 0, len(c.Variants)+len(variants))
	all = append(all, c.Variants...)
	return NewCatalog(append(all, variants...)...)
}

// Variant returns the named variant or nil
func (c *Catalog) Variant(name string) *Variant {
	for _, v := range c.Variants {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// LoadCatalog decodes a YAML catalog and validates it. Unknown keys are
// rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalogFile reads a YAML catalog from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return LoadCatalog(bytes.NewReader(data))
}

// Encode writes the catalog as YAML in the format LoadCatalog reads
func (c *Catalog) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Registry holds the active catalog. Catalogs are replaced whole, never
// patched; readers capture the pointer once per run.
type Registry struct {
	current atomic.Pointer[Catalog]
}

// NewRegistry creates a registry holding c
func NewRegistry(c *Catalog) (*Registry, error) {
	r := &Registry{}
	if err := r.Swap(c); err != nil {
		return nil, err
	}
	return r, nil
}

// Catalog returns the active catalog
func (r *Registry) Catalog() *Catalog {
	return r.current.Load()
}

// Swap validates c and makes it the active catalog. On error the previous
// catalog stays active.
func (r *Registry) Swap(c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.current.Store(c)
	return nil
}

// Reload loads a catalog file and swaps it in
func (r *Registry) Reload(path string) error {
	c, err := LoadCatalogFile(path)
	if err != nil {
		return err
	}
	return r.Swap(c)
}
