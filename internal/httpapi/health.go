package httpapi

import (
	"log/slog"
	"math"
	"net/http"
)

// HealthResponse is the body of GET / and GET /health.
type HealthResponse struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Events      int64         `json:"events"`
	Storage     StorageReport `json:"storage"`
	Endpoints   []string      `json:"endpoints"`
}

// StorageReport summarizes what the store holds.
type StorageReport struct {
	RawMB            float64 `json:"raw_mb"`
	CompressedMB     float64 `json:"compressed_mb"`
	CompressionRatio float64 `json:"compression_ratio"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		slog.Error("health stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Name:        s.info.Name,
		Description: s.info.Description,
		Events:      st.Events,
		Storage: StorageReport{
			RawMB:            round2(megabytes(st.RawBytes)),
			CompressedMB:     round2(megabytes(st.CompressedBytes)),
			CompressionRatio: round2(st.Ratio()),
		},
		Endpoints: s.endpoints(),
	})
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
