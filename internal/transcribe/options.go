package transcribe

import "fmt"

// ModelSize selects the faster-whisper checkpoint to load.
type ModelSize string

const (
	ModelTiny    ModelSize = "tiny"
	ModelBase    ModelSize = "base"
	ModelSmall   ModelSize = "small"
	ModelMedium  ModelSize = "medium"
	ModelLargeV2 ModelSize = "large-v2"
	ModelLargeV3 ModelSize = "large-v3"
)

// ModelSizes lists the selectable models in UI order.
var ModelSizes = []ModelSize{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLargeV2, ModelLargeV3}

// Device selects where inference runs.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

var Devices = []Device{DeviceCPU, DeviceCUDA}

// ComputeType is the numeric precision used by the engine.
type ComputeType string

const (
	ComputeFloat16     ComputeType = "float16"
	ComputeInt8Float16 ComputeType = "int8_float16"
	ComputeInt8        ComputeType = "int8"
)

var ComputeTypes = []ComputeType{ComputeFloat16, ComputeInt8Float16, ComputeInt8}

// Task is the recognition mode. TaskTranslate produces English text
// regardless of the source language.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

var Tasks = []Task{TaskTranscribe, TaskTranslate}

// LanguageAuto lets the engine detect the spoken language.
const LanguageAuto = "auto"

// Languages lists the selectable language codes, auto first.
var Languages = []string{LanguageAuto, "zh", "en", "ja", "ko", "fr", "de", "es"}

const (
	MinBeamSize     = 1
	MaxBeamSize     = 10
	DefaultBeamSize = 5
)

// Options are the per-run settings selected in the UI. They are validated
// once at the API boundary and immutable for the duration of the run.
type Options struct {
	Model       ModelSize   `json:"model"`
	Device      Device      `json:"device"`
	ComputeType ComputeType `json:"compute_type"`
	Language    string      `json:"language"`
	Task        Task        `json:"task"`
	BeamSize    int         `json:"beam_size"`
}

// Config is the subset of Options that identifies a loaded engine instance.
func (o Options) Config() Config {
	return Config{Model: o.Model, Device: o.Device, ComputeType: o.ComputeType}
}

// DefaultOptions mirror the UI defaults.
func DefaultOptions() Options {
	return Options{
		Model:       ModelSmall,
		Device:      DeviceCPU,
		ComputeType: ComputeFloat16,
		Language:    LanguageAuto,
		Task:        TaskTranscribe,
		BeamSize:    DefaultBeamSize,
	}
}

// ParseOptions validates raw dropdown values. Empty fields fall back to the
// given defaults so saved settings apply when the UI omits a value.
func ParseOptions(model, device, computeType, language, task string, beamSize int, defaults Options) (Options, error) {
	opts := defaults
	if opts.BeamSize == 0 {
		opts.BeamSize = DefaultBeamSize
	}

	if model != "" {
		m, err := ParseModelSize(model)
		if err != nil {
			return Options{}, err
		}
		opts.Model = m
	}
	if device != "" {
		d, err := ParseDevice(device)
		if err != nil {
			return Options{}, err
		}
		opts.Device = d
	}
	if computeType != "" {
		c, err := ParseComputeType(computeType)
		if err != nil {
			return Options{}, err
		}
		opts.ComputeType = c
	}
	if language != "" {
		l, err := ParseLanguage(language)
		if err != nil {
			return Options{}, err
		}
		opts.Language = l
	}
	if task != "" {
		t, err := ParseTask(task)
		if err != nil {
			return Options{}, err
		}
		opts.Task = t
	}
	if beamSize != 0 {
		if beamSize < MinBeamSize || beamSize > MaxBeamSize {
			return Options{}, fmt.Errorf("beam_size must be between %d and %d, got %d", MinBeamSize, MaxBeamSize, beamSize)
		}
		opts.BeamSize = beamSize
	}

	return opts, nil
}

func ParseModelSize(s string) (ModelSize, error) {
	for _, m := range ModelSizes {
		if s == string(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown model size: %q", s)
}

func ParseDevice(s string) (Device, error) {
	for _, d := range Devices {
		if s == string(d) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown device: %q", s)
}

func ParseComputeType(s string) (ComputeType, error) {
	for _, c := range ComputeTypes {
		if s == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown compute type: %q", s)
}

func ParseLanguage(s string) (string, error) {
	for _, l := range Languages {
		if s == l {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown language: %q", s)
}

func ParseTask(s string) (Task, error) {
	for _, t := range Tasks {
		if s == string(t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task: %q", s)
}
