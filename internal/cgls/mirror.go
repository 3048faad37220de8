package cgls

import (
	"fmt"
	"strings"
)

// Mirror keeps a local copy of a product archive, laid out by the
// product's DatafilePattern. A writable mirror accumulates downloads; a
// read-only mirror is only ever read from.
type Mirror struct {
	// Product is a catalog name, or "*" to serve any product that has
	// no mirror of its own.
	Product  string
	Path     string
	Readonly bool
}

// ParseMirror parses a mirror directive of the form
// "product-or-*,path,rw|ro".
func ParseMirror(directive string) (Mirror, error) {
	parts := strings.SplitN(directive, ",", 3)
	if len(parts) != 3 {
		return Mirror{}, fmt.Errorf("malformed mirror directive %q, want product,path,rw|ro", directive)
	}
	name := strings.TrimSpace(parts[0])
	path := strings.TrimSpace(parts[1])
	mode := strings.TrimSpace(parts[2])
	if name == "" || path == "" {
		return Mirror{}, fmt.Errorf("malformed mirror directive %q, want product,path,rw|ro", directive)
	}
	if mode != "rw" && mode != "ro" {
		return Mirror{}, fmt.Errorf("mirror directive %q: mode must be rw or ro, got %q", directive, mode)
	}
	return Mirror{Product: name, Path: path, Readonly: mode != "rw"}, nil
}

// MirrorFor selects the mirror serving a product: an exact name match
// wins over the "*" wildcard. Nil when no directive applies.
func MirrorFor(mirrors []Mirror, product string) *Mirror {
	var wildcard *Mirror
	for i := range mirrors {
		switch mirrors[i].Product {
		case product:
			return &mirrors[i]
		case "*":
			if wildcard == nil {
				wildcard = &mirrors[i]
			}
		}
	}
	return wildcard
}
