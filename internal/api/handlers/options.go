package handlers

import (
	"net/http"

	"github.com/whisper-web/backend/internal/db"
	"github.com/whisper-web/backend/internal/gpu"
	"github.com/whisper-web/backend/internal/transcribe"
)

// OptionsHandler feeds the UI dropdowns: the valid choice sets, the
// configured defaults, and whether CUDA is worth offering on this host.
type OptionsHandler struct {
	database *db.Database
}

func NewOptionsHandler(database *db.Database) *OptionsHandler {
	return &OptionsHandler{database: database}
}

type deviceChoice struct {
	Value     string `json:"value"`
	Available bool   `json:"available"`
}

type optionsResponse struct {
	Models       []transcribe.ModelSize   `json:"models"`
	Devices      []deviceChoice           `json:"devices"`
	ComputeTypes []transcribe.ComputeType `json:"compute_types"`
	Languages    []string                 `json:"languages"`
	Tasks        []transcribe.Task        `json:"tasks"`
	BeamSizeMin  int                      `json:"beam_size_min"`
	BeamSizeMax  int                      `json:"beam_size_max"`
	Defaults     transcribe.Options       `json:"defaults"`
	GPU          *gpu.Info                `json:"gpu"`
}

func (h *OptionsHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	info := gpu.Detect()

	devices := make([]deviceChoice, 0, len(transcribe.Devices))
	for _, d := range transcribe.Devices {
		available := true
		if d == transcribe.DeviceCUDA {
			available = info.CUDAAvailable
		}
		devices = append(devices, deviceChoice{Value: string(d), Available: available})
	}

	jsonResponse(w, optionsResponse{
		Models:       transcribe.ModelSizes,
		Devices:      devices,
		ComputeTypes: transcribe.ComputeTypes,
		Languages:    transcribe.Languages,
		Tasks:        transcribe.Tasks,
		BeamSizeMin:  transcribe.MinBeamSize,
		BeamSizeMax:  transcribe.MaxBeamSize,
		Defaults:     DefaultOptions(h.database),
		GPU:          info,
	}, http.StatusOK)
}
