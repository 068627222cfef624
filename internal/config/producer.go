package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/frame-producer/internal/monitoring"
	"github.com/banshee-data/frame-producer/internal/percival"
	"github.com/banshee-data/frame-producer/internal/percival/pattern"
)

// DefaultConfigPath is the path to the canonical producer defaults file.
const DefaultConfigPath = "config/frame-producer.defaults.json"

// DefaultMultiHosts are the four receiver nodes of the instrument's data
// acquisition network, used when multi-host mode is requested without an
// explicit host list.
var DefaultMultiHosts = []string{"192.168.0.1", "192.168.1.1", "192.168.2.1", "192.168.3.1"}

// ProducerConfig is the file form of a producer run. Every field is
// optional; the Get* methods supply defaults for fields left unset, so
// partial configs are safe.
type ProducerConfig struct {
	// Destinations
	Host  *string  `json:"host,omitempty" yaml:"host,omitempty"`
	Hosts []string `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Port  *int     `json:"port,omitempty" yaml:"port,omitempty"`

	// Run params
	Frames     *int    `json:"frames,omitempty" yaml:"frames,omitempty"`
	StartFrame *int    `json:"start_frame,omitempty" yaml:"start_frame,omitempty"`
	Interval   *string `json:"interval,omitempty" yaml:"interval,omitempty"` // duration string like "100ms"
	Continuous *bool   `json:"continuous,omitempty" yaml:"continuous,omitempty"`
	PayloadLen *int    `json:"payload_len,omitempty" yaml:"payload_len,omitempty"`

	// Packet number flags. Zero on the instrument.
	StartOfFrameFlag *int `json:"start_of_frame_flag,omitempty" yaml:"start_of_frame_flag,omitempty"`
	EndOfFrameFlag   *int `json:"end_of_frame_flag,omitempty" yaml:"end_of_frame_flag,omitempty"`

	// Sensor layout
	Layout        *LayoutConfig `json:"layout,omitempty" yaml:"layout,omitempty"`
	BytesPerPixel *int          `json:"bytes_per_pixel,omitempty" yaml:"bytes_per_pixel,omitempty"`

	// Outputs
	WriteBuffer   *int       `json:"write_buffer_bytes,omitempty" yaml:"write_buffer_bytes,omitempty"`
	CapturePath   *string    `json:"capture_path,omitempty" yaml:"capture_path,omitempty"`
	DBPath        *string    `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DisplayDir    *string    `json:"display_dir,omitempty" yaml:"display_dir,omitempty"`
	DisplayStride *int       `json:"display_stride,omitempty" yaml:"display_stride,omitempty"`
	Log           *LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
	Verbose       *bool      `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// LayoutConfig overrides parts of the default sensor layout.
type LayoutConfig struct {
	QuarterRows         *int `json:"quarter_rows,omitempty" yaml:"quarter_rows,omitempty"`
	QuarterCols         *int `json:"quarter_cols,omitempty" yaml:"quarter_cols,omitempty"`
	ColBlocksPerQuarter *int `json:"col_blocks_per_quarter,omitempty" yaml:"col_blocks_per_quarter,omitempty"`
	ColsPerColBlock     *int `json:"cols_per_col_block,omitempty" yaml:"cols_per_col_block,omitempty"`
	RowBlocksPerQuarter *int `json:"row_blocks_per_quarter,omitempty" yaml:"row_blocks_per_quarter,omitempty"`
	RowsPerRowBlock     *int `json:"rows_per_row_block,omitempty" yaml:"rows_per_row_block,omitempty"`
	ADCs                *int `json:"adcs,omitempty" yaml:"adcs,omitempty"`
	Regions             *int `json:"regions,omitempty" yaml:"regions,omitempty"`
	Subframes           *int `json:"subframes,omitempty" yaml:"subframes,omitempty"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// Ptr returns a pointer to v, for callers filling in a ProducerConfig.
func Ptr[T any](v T) *T { return &v }

// EmptyProducerConfig returns a ProducerConfig with all fields unset.
func EmptyProducerConfig() *ProducerConfig {
	return &ProducerConfig{}
}

// LoadProducerConfig loads a ProducerConfig from a .json, .yaml or .yml file
// and validates it.
func LoadProducerConfig(path string) (*ProducerConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyProducerConfig()
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	monitoring.Logf("Loaded configuration from %s", cleanPath)
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// current directory. Panics if the file cannot be loaded, intended for test
// setup.
func MustLoadDefaultConfig() *ProducerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/percival/network/
	}
	for _, path := range candidates {
		if cfg, err := LoadProducerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field checks on the
// resulting run are left to percival.Config.Validate.
func (c *ProducerConfig) Validate() error {
	if c.Host != nil && *c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Host != nil && len(c.Hosts) > 0 {
		return fmt.Errorf("host and hosts are mutually exclusive")
	}
	for i, h := range c.Hosts {
		if h == "" {
			return fmt.Errorf("hosts[%d] must not be empty", i)
		}
	}
	if c.Port != nil && (*c.Port < 1 || *c.Port >= math.MaxUint16) {
		return fmt.Errorf("port must be between 1 and %d, got %d", math.MaxUint16-1, *c.Port)
	}
	if c.Frames != nil && *c.Frames < 0 {
		return fmt.Errorf("frames must be non-negative, got %d", *c.Frames)
	}
	if c.StartFrame != nil && *c.StartFrame < 0 {
		return fmt.Errorf("start_frame must be non-negative, got %d", *c.StartFrame)
	}
	if c.Interval != nil && *c.Interval != "" {
		d, err := time.ParseDuration(*c.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval '%s': %w", *c.Interval, err)
		}
		if d < 0 {
			return fmt.Errorf("interval must be non-negative, got %s", d)
		}
	}
	if c.PayloadLen != nil && (*c.PayloadLen <= 0 || *c.PayloadLen > percival.MaxDatagramLen-percival.HeaderSize) {
		return fmt.Errorf("payload_len must be between 1 and %d, got %d",
			percival.MaxDatagramLen-percival.HeaderSize, *c.PayloadLen)
	}
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"start_of_frame_flag", c.StartOfFrameFlag},
		{"end_of_frame_flag", c.EndOfFrameFlag},
	} {
		if f.v != nil && (*f.v < 0 || *f.v > math.MaxUint16) {
			return fmt.Errorf("%s must fit in 16 bits, got %#x", f.name, *f.v)
		}
	}
	if c.BytesPerPixel != nil && *c.BytesPerPixel != pattern.BytesPerPixel {
		return fmt.Errorf("bytes_per_pixel must be %d, got %d", pattern.BytesPerPixel, *c.BytesPerPixel)
	}
	if c.WriteBuffer != nil && *c.WriteBuffer < 0 {
		return fmt.Errorf("write_buffer_bytes must be non-negative, got %d", *c.WriteBuffer)
	}
	if c.DisplayStride != nil && *c.DisplayStride < 1 {
		return fmt.Errorf("display_stride must be positive, got %d", *c.DisplayStride)
	}
	if c.Layout != nil {
		if err := c.GetLayout().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetHosts returns the receiver hosts, falling back to the single host.
func (c *ProducerConfig) GetHosts() []string {
	if len(c.Hosts) > 0 {
		return c.Hosts
	}
	return []string{c.GetHost()}
}

// GetHost returns the host value or the default.
func (c *ProducerConfig) GetHost() string {
	if c.Host == nil {
		return "127.0.0.1"
	}
	return *c.Host
}

// GetPort returns the port value or the default.
func (c *ProducerConfig) GetPort() int {
	if c.Port == nil {
		return percival.DefaultPort
	}
	return *c.Port
}

// GetFrames returns the frames value or the default.
func (c *ProducerConfig) GetFrames() int {
	if c.Frames == nil {
		return 0
	}
	return *c.Frames
}

// GetStartFrame returns the number given to the first transmitted frame.
func (c *ProducerConfig) GetStartFrame() int {
	if c.StartFrame == nil {
		return 0
	}
	return *c.StartFrame
}

// GetInterval parses and returns the Interval as a time.Duration.
func (c *ProducerConfig) GetInterval() time.Duration {
	if c.Interval == nil || *c.Interval == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.Interval)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetContinuous returns the continuous value or the default.
func (c *ProducerConfig) GetContinuous() bool {
	if c.Continuous == nil {
		return false
	}
	return *c.Continuous
}

// GetPayloadLen returns the payload_len value or the default.
func (c *ProducerConfig) GetPayloadLen() int {
	if c.PayloadLen == nil {
		return percival.DefaultPayloadLen
	}
	return *c.PayloadLen
}

func (c *ProducerConfig) GetStartOfFrameFlag() uint16 {
	if c.StartOfFrameFlag == nil {
		return 0
	}
	return uint16(*c.StartOfFrameFlag)
}

func (c *ProducerConfig) GetEndOfFrameFlag() uint16 {
	if c.EndOfFrameFlag == nil {
		return 0
	}
	return uint16(*c.EndOfFrameFlag)
}

// GetLayout returns the default sensor layout with any configured overrides.
func (c *ProducerConfig) GetLayout() pattern.Layout {
	l := pattern.DefaultLayout()
	if c.Layout == nil {
		return l
	}
	for _, o := range []struct {
		src *int
		dst *int
	}{
		{c.Layout.QuarterRows, &l.QuarterRows},
		{c.Layout.QuarterCols, &l.QuarterCols},
		{c.Layout.ColBlocksPerQuarter, &l.ColBlocksPerQuarter},
		{c.Layout.ColsPerColBlock, &l.ColsPerColBlock},
		{c.Layout.RowBlocksPerQuarter, &l.RowBlocksPerQuarter},
		{c.Layout.RowsPerRowBlock, &l.RowsPerRowBlock},
		{c.Layout.ADCs, &l.ADCs},
		{c.Layout.Regions, &l.Regions},
		{c.Layout.Subframes, &l.Subframes},
	} {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	return l
}

// GetGeometry returns the transmitter geometry of the configured layout.
func (c *ProducerConfig) GetGeometry() percival.Geometry {
	return c.GetLayout().Geometry(pattern.BytesPerPixel)
}

// GetWriteBuffer returns the socket send buffer size; zero keeps the OS
// default.
func (c *ProducerConfig) GetWriteBuffer() int {
	if c.WriteBuffer == nil {
		return 0
	}
	return *c.WriteBuffer
}

func (c *ProducerConfig) GetCapturePath() string {
	if c.CapturePath == nil {
		return ""
	}
	return *c.CapturePath
}

func (c *ProducerConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

func (c *ProducerConfig) GetDisplayDir() string {
	if c.DisplayDir == nil {
		return ""
	}
	return *c.DisplayDir
}

// GetDisplayStride returns the heatmap decimation or the default.
func (c *ProducerConfig) GetDisplayStride() int {
	if c.DisplayStride == nil {
		return 4
	}
	return *c.DisplayStride
}

// GetLogFile returns the rotating log file settings. An empty Path means
// logging to stderr only.
func (c *ProducerConfig) GetLogFile() monitoring.FileConfig {
	if c.Log == nil {
		return monitoring.FileConfig{}
	}
	return monitoring.FileConfig{
		Path:       c.Log.Path,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		MaxBackups: c.Log.MaxBackups,
		Compress:   c.Log.Compress,
	}
}

func (c *ProducerConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}

// RunConfig builds the transmitter configuration. The result is validated.
func (c *ProducerConfig) RunConfig() (percival.Config, error) {
	cfg := percival.Config{
		Geometry:         c.GetGeometry(),
		PayloadLen:       c.GetPayloadLen(),
		Frames:           c.GetFrames(),
		Continuous:       c.GetContinuous(),
		Interval:         c.GetInterval(),
		StartOfFrameFlag: c.GetStartOfFrameFlag(),
		EndOfFrameFlag:   c.GetEndOfFrameFlag(),
		Verbose:          c.GetVerbose(),
	}
	for _, h := range c.GetHosts() {
		cfg.Destinations = append(cfg.Destinations, percival.Destination{Host: h, BasePort: c.GetPort()})
	}
	if err := cfg.Validate(); err != nil {
		return percival.Config{}, err
	}
	return cfg, nil
}
