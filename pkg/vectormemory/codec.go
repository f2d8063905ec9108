package vectormemory

import (
	"encoding/json"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// EncodeEmbedding serializes a query vector into the opaque byte form
// ports.VectorMemory.Search accepts.
func EncodeEmbedding(vec []float64) []byte {
	b, _ := json.Marshal(vec)
	return b
}

func decodeEmbedding(query []byte) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal(query, &vec); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed embedding query")
	}
	return vec, nil
}
