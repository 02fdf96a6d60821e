// Package catalog declares the canonical Senate Matching field schema and the
// alias table that maps Databank column names onto it.
//
// The catalog is the single source of truth consumed by the header resolver,
// the normalizer, and the hasher. It is immutable after construction except
// for salt injection, which must complete before streaming begins (salts come
// from the Contributor Node's GlobalConfig endpoint, see internal/node).
package catalog

import (
	"fmt"
	"sort"

	"hitchload/internal/normalize"
)

// Field describes one canonical output field.
type Field struct {
	// Name is the canonical field name and the base of its output key.
	Name string

	// Aliases are the accepted raw input column names, Name included.
	Aliases []string

	// Mandatory fields must be bound by at least one input column.
	Mandatory bool

	// Multivalue documents that more than one input column may legitimately
	// populate this field. The occurrence-suffix rule in internal/schema is
	// driven by the observed column count, not by this flag.
	Multivalue bool

	// Normalization selects the normalize method applied to raw values.
	Normalization normalize.Method

	// Primary marks the cleartext join key. At most one field is primary and
	// its value is never hashed.
	Primary bool

	// Hashed controls whether the normalized value is salted and digested.
	// Primary fields are implicitly unhashed.
	Hashed bool

	salt    string
	hasSalt bool
}

// Salt returns the injected salt and whether one has been set.
func (f *Field) Salt() (string, bool) { return f.salt, f.hasSalt }

// Catalog is the full field schema plus a precomputed alias index.
type Catalog struct {
	fields  []*Field
	byName  map[string]*Field
	byAlias map[string]*Field
}

// New builds a catalog from the given fields. It fails when an alias is
// declared by two fields, when a field omits its own name from its alias set,
// or when more than one field is marked primary.
func New(fields []*Field) (*Catalog, error) {
	c := &Catalog{
		fields:  fields,
		byName:  make(map[string]*Field, len(fields)),
		byAlias: make(map[string]*Field),
	}
	primary := ""
	for _, f := range fields {
		if _, dup := c.byName[f.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate field %q", f.Name)
		}
		c.byName[f.Name] = f

		selfAliased := false
		for _, a := range f.Aliases {
			if prev, dup := c.byAlias[a]; dup {
				return nil, fmt.Errorf("catalog: alias %q declared by both %q and %q", a, prev.Name, f.Name)
			}
			c.byAlias[a] = f
			if a == f.Name {
				selfAliased = true
			}
		}
		if !selfAliased {
			return nil, fmt.Errorf("catalog: field %q does not alias its own name", f.Name)
		}

		if f.Primary {
			if primary != "" {
				return nil, fmt.Errorf("catalog: fields %q and %q both marked primary", primary, f.Name)
			}
			primary = f.Name
			f.Hashed = false
		}
	}
	return c, nil
}

// ResolveAlias returns the field that declares the given raw column name, or
// nil when the name is not an alias of any field.
func (c *Catalog) ResolveAlias(name string) *Field { return c.byAlias[name] }

// Field returns the field with the given canonical name, or nil.
func (c *Catalog) Field(name string) *Field { return c.byName[name] }

// MandatoryFields returns the mandatory fields sorted by name.
func (c *Catalog) MandatoryFields() []*Field {
	var out []*Field
	for _, f := range c.fields {
		if f.Mandatory {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HashedFields returns every field with Hashed set, sorted by name.
func (c *Catalog) HashedFields() []*Field {
	var out []*Field
	for _, f := range c.fields {
		if f.Hashed {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetSalt injects the hash salt for the named field. Setting a salt on an
// unknown field is an error so that a drifting GlobalConfig payload surfaces
// loudly instead of silently hashing with the zero salt.
func (c *Catalog) SetSalt(fieldName, salt string) error {
	f := c.byName[fieldName]
	if f == nil {
		return fmt.Errorf("catalog: set salt: unknown field %q", fieldName)
	}
	f.salt = salt
	f.hasSalt = true
	return nil
}

// MissingSalts returns the names of hashed fields that have no salt yet.
// Streaming must not start while this is non-empty.
func (c *Catalog) MissingSalts() []string {
	var out []string
	for _, f := range c.HashedFields() {
		if !f.hasSalt {
			out = append(out, f.Name)
		}
	}
	return out
}

// Default returns the shipped Databank → Senate Matching catalog.
//
// Alias sets mirror the Databank export column vocabulary; each field aliases
// its own canonical name so that already-converted files resolve cleanly.
func Default() *Catalog {
	c, err := New([]*Field{
		{
			Name:          "personid",
			Aliases:       []string{"personid", "natural_key"},
			Mandatory:     true,
			Normalization: normalize.Identity,
			Primary:       true,
		},
		{
			Name:          "family_name",
			Aliases:       []string{"family_name", "family_names"},
			Multivalue:    true,
			Normalization: normalize.Name,
			Hashed:        true,
		},
		{
			Name:          "given_name",
			Aliases:       []string{"given_name", "first_name"},
			Multivalue:    true,
			Normalization: normalize.Uppercase,
			Hashed:        true,
		},
		{
			Name:          "email",
			Aliases:       []string{"email", "contact_email_address", "alternate_email_address"},
			Multivalue:    true,
			Normalization: normalize.Email,
			Hashed:        true,
		},
		{
			Name: "phone",
			Aliases: []string{
				"phone",
				"contact_mobile_number", "alternate_mobile_number",
				"contact_landline_number", "alternate_landline_number",
			},
			Multivalue:    true,
			Normalization: normalize.Phone,
			Hashed:        true,
		},
		{
			Name:          "dpid",
			Aliases:       []string{"dpid", "contact_aus_dpid", "alternate_aus_dpid"},
			Multivalue:    true,
			Normalization: normalize.Numeric,
			Hashed:        true,
		},
		{
			Name:          "frequent_flyer_number",
			Aliases:       []string{"frequent_flyer_number"},
			Normalization: normalize.Uppercase,
			Hashed:        true,
		},
		{
			Name:          "nationalid",
			Aliases:       []string{"nationalid"},
			Normalization: normalize.Uppercase,
			Hashed:        true,
		},
		{
			Name:          "operation",
			Aliases:       []string{"operation"},
			Normalization: normalize.Uppercase,
			Hashed:        false,
		},
	})
	if err != nil {
		// The shipped table is validated by tests; a broken build-in is a bug.
		panic(err)
	}
	return c
}
