package driveops

import (
	"fmt"
	"strings"
)

// forbiddenChars are rejected by SharePoint in item names.
const forbiddenChars = `"*:<>?|`

// PathSpec is a root path plus the variable segments beneath it, e.g.
// "Incident Reports" + [2025, Davao City, SMCOD-IR-GS-DVO-2025-0007]. It
// is only used to resolve items and never persisted.
type PathSpec struct {
	Root     string
	Segments []string
}

// NewPathSpec validates root and segments. The root is a slash path
// relative to the drive root; "" or "/" means the drive root itself.
func NewPathSpec(root string, segments ...string) (PathSpec, error) {
	root = strings.Trim(root, "/")

	if root != "" {
		for part := range strings.SplitSeq(root, "/") {
			if err := ValidateName(part); err != nil {
				return PathSpec{}, fmt.Errorf("root %q: %w", root, err)
			}
		}
	}

	for _, seg := range segments {
		if err := ValidateName(seg); err != nil {
			return PathSpec{}, err
		}
	}

	return PathSpec{Root: root, Segments: append([]string(nil), segments...)}, nil
}

// ValidateName checks a single path segment or file name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	case name == "." || name == "..":
		return fmt.Errorf("%w: relative segment %q", ErrInvalidPath, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: segment %q contains a path separator", ErrInvalidPath, name)
	case strings.ContainsAny(name, forbiddenChars):
		return fmt.Errorf("%w: segment %q contains one of %s", ErrInvalidPath, name, forbiddenChars)
	}

	for _, r := range name {
		if r < 0x20 {
			return fmt.Errorf("%w: segment %q contains a control character", ErrInvalidPath, name)
		}
	}

	return nil
}

// Child returns a spec one segment deeper.
func (p PathSpec) Child(segment string) (PathSpec, error) {
	return NewPathSpec(p.Root, append(append([]string(nil), p.Segments...), segment)...)
}

// prefix renders the root plus the first n segments.
func (p PathSpec) prefix(n int) string {
	parts := make([]string, 0, n+1)
	if p.Root != "" {
		parts = append(parts, p.Root)
	}

	parts = append(parts, p.Segments[:n]...)

	return strings.Join(parts, "/")
}

// String renders the full slash path relative to the drive root.
func (p PathSpec) String() string {
	return p.prefix(len(p.Segments))
}
