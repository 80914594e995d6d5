package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/whisper-web/backend/internal/db"
	"github.com/whisper-web/backend/internal/transcribe"
)

// Setting keys for the run-option defaults the admin can change. Values must
// be valid dropdown choices; empty means "use the built-in default".
const (
	SettingDefaultModel       = "default_model"
	SettingDefaultDevice      = "default_device"
	SettingDefaultComputeType = "default_compute_type"
	SettingDefaultLanguage    = "default_language"
	SettingDefaultTask        = "default_task"
)

type SettingDef struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
}

var settingsKeys = []SettingDef{
	{Key: SettingDefaultModel, Label: "Default Model", Placeholder: "small"},
	{Key: SettingDefaultDevice, Label: "Default Device", Placeholder: "cpu"},
	{Key: SettingDefaultComputeType, Label: "Default Compute Type", Placeholder: "float16"},
	{Key: SettingDefaultLanguage, Label: "Default Language", Placeholder: "auto"},
	{Key: SettingDefaultTask, Label: "Default Task", Placeholder: "transcribe"},
}

type SettingsHandler struct {
	database *db.Database
}

func NewSettingsHandler(database *db.Database) *SettingsHandler {
	return &SettingsHandler{database: database}
}

// DefaultOptions merges the built-in defaults with whatever the admin saved.
// Invalid stored values are ignored rather than breaking every run.
func DefaultOptions(database *db.Database) transcribe.Options {
	opts := transcribe.DefaultOptions()
	if v := database.GetSetting(SettingDefaultModel, ""); v != "" {
		if m, err := transcribe.ParseModelSize(v); err == nil {
			opts.Model = m
		}
	}
	if v := database.GetSetting(SettingDefaultDevice, ""); v != "" {
		if d, err := transcribe.ParseDevice(v); err == nil {
			opts.Device = d
		}
	}
	if v := database.GetSetting(SettingDefaultComputeType, ""); v != "" {
		if c, err := transcribe.ParseComputeType(v); err == nil {
			opts.ComputeType = c
		}
	}
	if v := database.GetSetting(SettingDefaultLanguage, ""); v != "" {
		if l, err := transcribe.ParseLanguage(v); err == nil {
			opts.Language = l
		}
	}
	if v := database.GetSetting(SettingDefaultTask, ""); v != "" {
		if t, err := transcribe.ParseTask(v); err == nil {
			opts.Task = t
		}
	}
	return opts
}

// parseRunOptions validates the dropdown values from a run request against
// the configured defaults.
func parseRunOptions(database *db.Database, model, device, computeType, language, task string, beamSize int) (transcribe.Options, error) {
	return transcribe.ParseOptions(model, device, computeType, language, task, beamSize, DefaultOptions(database))
}

// GetSettings returns the configurable defaults with their current values.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.database.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	type SettingResponse struct {
		SettingDef
		Value string `json:"value"`
	}

	result := make([]SettingResponse, 0, len(settingsKeys))
	for _, def := range settingsKeys {
		result = append(result, SettingResponse{SettingDef: def, Value: all[def.Key]})
	}

	jsonResponse(w, result, http.StatusOK)
}

// UpdateSettings saves run-option defaults. Unknown keys are ignored; known
// keys must hold valid dropdown values.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	for key, value := range updates {
		if err := validateSetting(key, value); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	allowed := make(map[string]bool)
	for _, def := range settingsKeys {
		allowed[def.Key] = true
	}

	for key, value := range updates {
		if !allowed[key] {
			continue
		}
		if err := h.database.SetSetting(key, value); err != nil {
			jsonError(w, "failed to save setting: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	jsonResponse(w, map[string]string{"status": "saved"}, http.StatusOK)
}

func validateSetting(key, value string) error {
	if value == "" {
		return nil
	}
	var err error
	switch key {
	case SettingDefaultModel:
		_, err = transcribe.ParseModelSize(value)
	case SettingDefaultDevice:
		_, err = transcribe.ParseDevice(value)
	case SettingDefaultComputeType:
		_, err = transcribe.ParseComputeType(value)
	case SettingDefaultLanguage:
		_, err = transcribe.ParseLanguage(value)
	case SettingDefaultTask:
		_, err = transcribe.ParseTask(value)
	}
	return err
}
