package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafe = regexp.MustCompile(`[^A-Za-z0-9_\- ]`)

// Normalize canonicalizes a free-form course identifier into the key that
// partitions the index. The result contains only [A-Z0-9_- ] with no ".."
// sequences, so it can never escape a collection name or storage path.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	key := strings.ReplaceAll(raw, "..", "")
	key = unsafe.ReplaceAllString(key, "")
	key = strings.TrimSpace(key)
	return strings.ToUpper(key)
}

// CollectionName derives the scoped handle for one (owner, tenant) pair.
// Every store backend keys its rows or collections by this pair, so a
// handle obtained here can only ever see its own tenant's chunks.
func CollectionName(ownerID int64, key string) string {
	return fmt.Sprintf("u%d_%s", ownerID, strings.ReplaceAll(Normalize(key), " ", "-"))
}
