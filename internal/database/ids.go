package database

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"propertylist/server/config"
	"propertylist/server/internal/models"
)

// recordNamespace scopes the name-based record IDs
var recordNamespace = uuid.MustParse("6f1c9a4e-2b7d-4c1e-9a53-8d0f3e2b7c61")

// contentHash fingerprints the stable identity fields of a listing. The
// address only takes part when the feed gives no reference.
func contentHash(p *models.PropertyRecord) string {
	parts := []string{
		models.NormalizeKey(p.City),
		models.NormalizeKey(config.CanonicalProvince(p.Province)),
		string(p.PropertyType),
	}
	if strings.TrimSpace(p.Reference) == "" {
		parts = append(parts, models.NormalizeKey(p.Address))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// RecordID derives the deterministic ID of a listing from one feed. The same
// listing re-ingested from the same feed keeps its ID; the same reference on
// another feed gets a different one.
func RecordID(feedSource string, p *models.PropertyRecord) string {
	name := strings.Join([]string{
		models.NormalizeKey(feedSource),
		strings.TrimSpace(p.Reference),
		contentHash(p),
	}, "|")
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
