package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata identifies the copy and page a capture belongs to.
type Metadata struct {
	Name   string
	CopyID int
	Page   int
}

// DefaultMetadata is used when no identity payload could be decoded.
func DefaultMetadata() Metadata {
	return Metadata{Page: 1}
}

// ParseMetadata decodes "name,copy-id,page". Anything that does not decode
// yields DefaultMetadata.
func ParseMetadata(s string) Metadata {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return DefaultMetadata()
	}
	copyID, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || copyID < 0 {
		return DefaultMetadata()
	}
	page, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || page < 1 {
		return DefaultMetadata()
	}
	return Metadata{Name: parts[0], CopyID: copyID, Page: page}
}

// String encodes m in the identity payload form.
func (m Metadata) String() string {
	return fmt.Sprintf("%s,%d,%d", m.Name, m.CopyID, m.Page)
}
