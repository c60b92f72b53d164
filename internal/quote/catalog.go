package quote

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is a bookable unit type and the vendor code it maps to.
type Unit struct {
	Name string
	Code int64
}

// Catalog maps unit names to vendor unit-type codes, keeping declaration order.
type Catalog struct {
	units []Unit
	index map[string]int64
}

// NewCatalog builds a catalog from units. Later duplicates of a name are ignored.
func NewCatalog(units ...Unit) Catalog {
	c := Catalog{index: make(map[string]int64, len(units))}
	for _, u := range units {
		if _, dup := c.index[u.Name]; dup {
			continue
		}
		c.index[u.Name] = u.Code
		c.units = append(c.units, u)
	}
	return c
}

// DefaultCatalog returns the unit types known to the vendor out of the box.
func DefaultCatalog() Catalog {
	return NewCatalog(
		Unit{Name: "Standard Unit", Code: -2147483637},
		Unit{Name: "Deluxe Unit", Code: -2147483456},
	)
}

// ParseCatalog parses "Name=code,Name=code" into a Catalog.
func ParseCatalog(s string) (Catalog, error) {
	var units []Unit
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, code, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return Catalog{}, fmt.Errorf("invalid catalog entry %q: want Name=code", entry)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(code), 10, 64)
		if err != nil {
			return Catalog{}, fmt.Errorf("invalid code for unit %q: %w", name, err)
		}
		units = append(units, Unit{Name: name, Code: n})
	}
	if len(units) == 0 {
		return Catalog{}, fmt.Errorf("catalog is empty")
	}
	return NewCatalog(units...), nil
}

// Lookup returns the vendor code for name.
func (c Catalog) Lookup(name string) (int64, bool) {
	code, ok := c.index[name]
	return code, ok
}

// Has reports whether name is a catalog key.
func (c Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// First returns the first declared unit.
func (c Catalog) First() (Unit, bool) {
	if len(c.units) == 0 {
		return Unit{}, false
	}
	return c.units[0], true
}

// Names returns unit names in declaration order.
func (c Catalog) Names() []string {
	names := make([]string, len(c.units))
	for i, u := range c.units {
		names[i] = u.Name
	}
	return names
}

// Len returns the number of units.
func (c Catalog) Len() int {
	return len(c.units)
}
