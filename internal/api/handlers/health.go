package handlers

import (
	"net/http"

	"github.com/whisper-web/backend/internal/gpu"
)

func Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"status": "ok",
		"cuda":   gpu.Detect().CUDAAvailable,
	}, http.StatusOK)
}
