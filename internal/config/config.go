package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrIO marks settings documents that could not be read or decoded.
var ErrIO = errors.New("settings io")

// ErrInvalid marks settings documents that decoded but failed validation.
var ErrInvalid = errors.New("invalid settings")

// Duration is a YAML and JSON friendly wrapper around time.Duration that
// accepts human readable strings such as "16ms" while still allowing numeric
// nanosecond values.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got yaml kind %d", value.Kind)
	}
	if value.ShortTag() == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" || s == "null" || s == "~" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Graph store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Settings is the flat key-value document that configures terrain streaming.
// A validated Settings value is treated as immutable and passed by value.
type Settings struct {
	TileWidth             float32  `yaml:"tileWidth" json:"tileWidth"`
	MaxSubdivision        int      `yaml:"maxSubdivision" json:"maxSubdivision"`               // quads per tile edge
	GridDimensions        int      `yaml:"gridDimensions" json:"gridDimensions"`               // streamed window diameter in tiles
	ViewDistance          int      `yaml:"viewDistance" json:"viewDistance"`                   // window radius in tiles
	SourceImageResolution int      `yaml:"sourceImageResolution" json:"sourceImageResolution"` // heightmap samples per tile edge
	WorkerThreads         int      `yaml:"workerThreads" json:"workerThreads"`
	HeightScale           float32  `yaml:"heightScale" json:"heightScale"`
	Seed                  int64    `yaml:"seed" json:"seed"`
	MaxChunks             int      `yaml:"maxChunks" json:"maxChunks"`               // chunk buffer slot capacity
	RetireHysteresis      int      `yaml:"retireHysteresis" json:"retireHysteresis"` // extra tiles kept beyond viewDistance
	FrameInterval         Duration `yaml:"frameInterval" json:"frameInterval"`
	CameraSpeed           float32  `yaml:"cameraSpeed" json:"cameraSpeed"` // world units per second for the flythrough
	GraphStore            string   `yaml:"graphStore" json:"graphStore"`
	GraphDir              string   `yaml:"graphDir" json:"graphDir"`
	GraphDSN              string   `yaml:"graphDsn" json:"graphDsn"`
	GraphID               string   `yaml:"graphId" json:"graphId"` // empty selects the built-in graph
	StatusListen          string   `yaml:"statusListen" json:"statusListen"`
}

// Default returns settings that stream a 9x9 window of tiles.
func Default() Settings {
	return Settings{
		TileWidth:             64,
		MaxSubdivision:        32,
		GridDimensions:        9,
		ViewDistance:          4,
		SourceImageResolution: 65,
		WorkerThreads:         4,
		HeightScale:           24,
		Seed:                  1337,
		MaxChunks:             96,
		RetireHysteresis:      0,
		FrameInterval:         Duration(16 * time.Millisecond),
		CameraSpeed:           8,
		GraphStore:            StoreFile,
		GraphDir:              "graphs",
	}
}

// WindowTiles is the number of tiles resident at steady state.
func (s Settings) WindowTiles() int {
	d := 2*s.ViewDistance + 1
	return d * d
}

// Validate checks every field and derives GridDimensions when it is unset.
func (s *Settings) Validate() error {
	if s.TileWidth <= 0 || math.IsInf(float64(s.TileWidth), 0) || math.IsNaN(float64(s.TileWidth)) {
		return errors.New("tileWidth must be positive")
	}
	if s.MaxSubdivision <= 0 {
		return errors.New("maxSubdivision must be positive")
	}
	if s.ViewDistance < 0 {
		return errors.New("viewDistance cannot be negative")
	}
	if s.GridDimensions == 0 {
		s.GridDimensions = 2*s.ViewDistance + 1
	}
	if s.GridDimensions != 2*s.ViewDistance+1 {
		return fmt.Errorf("gridDimensions must equal 2*viewDistance+1 (%d)", 2*s.ViewDistance+1)
	}
	if s.SourceImageResolution < 2 {
		return errors.New("sourceImageResolution must be at least 2")
	}
	if s.WorkerThreads <= 0 {
		return errors.New("workerThreads must be positive")
	}
	if math.IsInf(float64(s.HeightScale), 0) || math.IsNaN(float64(s.HeightScale)) {
		return errors.New("heightScale must be finite")
	}
	if s.MaxChunks <= 0 {
		return errors.New("maxChunks must be positive")
	}
	if s.MaxChunks < s.WindowTiles() {
		return fmt.Errorf("maxChunks %d cannot hold the %d tile view window", s.MaxChunks, s.WindowTiles())
	}
	if s.RetireHysteresis < 0 {
		return errors.New("retireHysteresis cannot be negative")
	}
	if s.FrameInterval < 0 {
		return errors.New("frameInterval cannot be negative")
	}
	switch s.GraphStore {
	case StoreFile:
		if s.GraphDir == "" {
			return errors.New("graphDir must be set for the file graph store")
		}
	case StorePostgres:
		if s.GraphDSN == "" {
			return errors.New("graphDsn must be set for the postgres graph store")
		}
	default:
		return fmt.Errorf("graphStore %q is not one of %q, %q", s.GraphStore, StoreFile, StorePostgres)
	}
	return nil
}

// Load reads a settings document. Files ending in .json are decoded as JSON,
// anything else as YAML. An empty path returns the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}

	if err := decodeStrict(data, isJSON(path), &s); err != nil {
		return Settings{}, fmt.Errorf("%w: parse %s: %w", ErrIO, path, err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return s, nil
}

// decodeStrict decodes a settings document over s, rejecting unknown keys.
func decodeStrict(data []byte, asJSON bool, s *Settings) error {
	if asJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(s)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(s)
}

// LoadOrDefault loads path and falls back to regenerated defaults when the
// document is missing, malformed or invalid. A malformed document is kept
// beside the regenerated one with a .bak suffix.
func LoadOrDefault(path string, logger *log.Logger) Settings {
	if logger == nil {
		logger = log.Default()
	}
	s, err := Load(path)
	if err == nil {
		return s
	}

	logger.Printf("settings %s unusable, regenerating defaults: %v", path, err)
	if _, statErr := os.Stat(path); statErr == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			logger.Printf("keep malformed settings: %v", err)
		}
	}
	s = Default()
	if err := Save(path, s); err != nil {
		logger.Printf("write default settings: %v", err)
	}
	return s
}

// Save writes the settings document, creating parent directories as needed.
func Save(path string, s Settings) error {
	if path == "" {
		return errors.New("settings path is empty")
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// WriteDefault writes the default settings to path.
func WriteDefault(path string) error {
	return Save(path, Default())
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
