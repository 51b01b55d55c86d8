package raffle

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultFolioPrefix gives folios like RF26-3FA9C1.
const DefaultFolioPrefix = "RF26"

// FolioGenerator produces human-facing purchase references. Uniqueness is
// enforced by the unique index on purchases.folio, not by the generator.
type FolioGenerator interface {
	NewFolio() string
}

type uuidFolios struct {
	prefix string
}

// NewFolioGenerator returns a generator of PREFIX-XXXXXX folios, where the
// suffix is 6 hex chars of a random UUID.
func NewFolioGenerator(prefix string) FolioGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultFolioPrefix
	}
	return uuidFolios{prefix: prefix}
}

func (g uuidFolios) NewFolio() string {
	return g.prefix + "-" + strings.ToUpper(uuid.New().String()[:6])
}

// NormalizeFolio is how folios typed by buyers are compared.
func NormalizeFolio(folio string) string {
	return strings.ToUpper(strings.TrimSpace(folio))
}
