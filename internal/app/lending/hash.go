package lending

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// IntegrityHash fingerprints the two committed final sets of a session.
// encoding/json sorts map keys, so equal sets always hash equally.
func IntegrityHash(handout, handover *domain.FinalSet) (string, error) {
	doc := struct {
		Handout  *domain.FinalSet `json:"handout"`
		Handover *domain.FinalSet `json:"handover"`
	}{handout, handover}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode final sets: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
