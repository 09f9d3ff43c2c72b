package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier tagged with prefix, e.g. "sale_5f0c...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
