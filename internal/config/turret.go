package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/units"
)

// DefaultConfigPath is the path to the canonical turret defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/turret.defaults.json"

// fallbackPorts are tried after the configured port, covering the device
// names the bridge adapter enumerates as on the deployed hosts.
var fallbackPorts = []string{"/dev/ttyUSB0", "/dev/ttyACM1", "/dev/ttyUSB1", "COM3", "COM4"}

// TurretConfig is the root configuration: serial link, control loop tuning,
// and service surfaces. All fields are optional; the Get* methods supply the
// deployed defaults for anything the JSON omits, so partial configs are
// safe.
type TurretConfig struct {
	// Serial link params
	SerialPort   *string `json:"serial_port,omitempty"`
	BaudRate     *int    `json:"baud_rate,omitempty"`
	CommandCANID *int    `json:"command_can_id,omitempty"`

	// Actuator defaults
	PitchDefault *int `json:"pitch_default,omitempty"`
	YawDefault   *int `json:"yaw_default,omitempty"`
	IdleAngle    *int `json:"idle_angle,omitempty"`

	// Patrol params
	PatrolRightLimit *int    `json:"patrol_right_limit,omitempty"`
	PatrolLeftLimit  *int    `json:"patrol_left_limit,omitempty"`
	PatrolStep       *int    `json:"patrol_step,omitempty"`
	PatrolInterval   *string `json:"patrol_interval,omitempty"` // duration string like "30ms"

	// Tracking params
	TargetColor    *string `json:"target_color,omitempty"`
	CenterMarginPx *int    `json:"center_margin_px,omitempty"`
	YawNudge       *int    `json:"yaw_nudge,omitempty"`
	PulseOn        *string `json:"pulse_on,omitempty"`       // duration string like "400ms"
	PulseOff       *string `json:"pulse_off,omitempty"`      // duration string like "200ms"
	LossDebounce   *string `json:"loss_debounce,omitempty"`  // duration string like "1s"

	// Service params
	HTTPAddr     *string `json:"http_addr,omitempty"`
	DatabasePath *string `json:"database_path,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// EmptyTurretConfig returns a TurretConfig with all fields set to nil.
// Use LoadTurretConfig to load actual values from a file.
func EmptyTurretConfig() *TurretConfig {
	return &TurretConfig{}
}

// LoadTurretConfig loads a TurretConfig from a JSON file. The file must
// have a .json extension and stay under the max file size.
func LoadTurretConfig(path string) (*TurretConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
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

	cfg := EmptyTurretConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent
// directories. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TurretConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/*
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTurretConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are consistent.
func (c *TurretConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.CommandCANID != nil {
		if *c.CommandCANID < 0 || *c.CommandCANID > 0x7FF {
			return fmt.Errorf("command_can_id must be a standard 11-bit identifier, got %#x", *c.CommandCANID)
		}
	}

	for name, v := range map[string]*int{
		"pitch_default":      c.PitchDefault,
		"yaw_default":        c.YawDefault,
		"idle_angle":         c.IdleAngle,
		"patrol_right_limit": c.PatrolRightLimit,
		"patrol_left_limit":  c.PatrolLeftLimit,
	} {
		if v != nil && !units.InRange(*v) {
			return fmt.Errorf("%s must be within [%d, %d], got %d", name, units.TickMin, units.TickMax, *v)
		}
	}
	if c.GetPatrolRightLimit() >= c.GetPatrolLeftLimit() {
		return fmt.Errorf("patrol_right_limit %d must be below patrol_left_limit %d",
			c.GetPatrolRightLimit(), c.GetPatrolLeftLimit())
	}
	if c.PatrolStep != nil && *c.PatrolStep <= 0 {
		return fmt.Errorf("patrol_step must be positive, got %d", *c.PatrolStep)
	}
	if c.CenterMarginPx != nil && *c.CenterMarginPx < 0 {
		return fmt.Errorf("center_margin_px must be non-negative, got %d", *c.CenterMarginPx)
	}
	if c.YawNudge != nil && *c.YawNudge <= 0 {
		return fmt.Errorf("yaw_nudge must be positive, got %d", *c.YawNudge)
	}

	if c.TargetColor != nil {
		switch strings.ToLower(*c.TargetColor) {
		case "red", "blue", "r", "b":
		default:
			return fmt.Errorf("target_color must be red or blue, got %q", *c.TargetColor)
		}
	}

	for name, v := range map[string]*string{
		"patrol_interval": c.PatrolInterval,
		"pulse_on":        c.PulseOn,
		"pulse_off":       c.PulseOff,
		"loss_debounce":   c.LossDebounce,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

// GetPortCandidates returns the serial device list to try in order: the
// configured port first, then the fixed fallbacks, deduplicated.
func (c *TurretConfig) GetPortCandidates() []string {
	candidates := make([]string, 0, len(fallbackPorts)+1)
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			candidates = append(candidates, p)
		}
	}
	add(c.GetSerialPort())
	for _, p := range fallbackPorts {
		add(p)
	}
	return candidates
}

// GetSerialPort returns the preferred serial device or the default.
func (c *TurretConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *TurretConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetCommandCANID returns the outbound CAN identifier or the default.
func (c *TurretConfig) GetCommandCANID() uint32 {
	if c.CommandCANID == nil {
		return 0x601
	}
	return uint32(*c.CommandCANID)
}

// GetPitchDefault returns the pitch_default value or the default.
func (c *TurretConfig) GetPitchDefault() int {
	if c.PitchDefault == nil {
		return 11000
	}
	return *c.PitchDefault
}

// GetYawDefault returns the yaw_default value or the default.
func (c *TurretConfig) GetYawDefault() int {
	if c.YawDefault == nil {
		return 20000
	}
	return *c.YawDefault
}

// GetIdleAngle returns the idle_angle value or the default.
func (c *TurretConfig) GetIdleAngle() int {
	if c.IdleAngle == nil {
		return 0
	}
	return *c.IdleAngle
}

// GetPatrolRightLimit returns the patrol_right_limit value or the default.
func (c *TurretConfig) GetPatrolRightLimit() int {
	if c.PatrolRightLimit == nil {
		return 2000
	}
	return *c.PatrolRightLimit
}

// GetPatrolLeftLimit returns the patrol_left_limit value or the default.
func (c *TurretConfig) GetPatrolLeftLimit() int {
	if c.PatrolLeftLimit == nil {
		return 28000
	}
	return *c.PatrolLeftLimit
}

// GetPatrolStep returns the patrol_step value or the default.
func (c *TurretConfig) GetPatrolStep() int {
	if c.PatrolStep == nil {
		return 50
	}
	return *c.PatrolStep
}

// GetPatrolInterval parses and returns the PatrolInterval as a duration.
func (c *TurretConfig) GetPatrolInterval() time.Duration {
	return c.duration(c.PatrolInterval, 30*time.Millisecond)
}

// GetTargetColor returns the target_color value or the default.
func (c *TurretConfig) GetTargetColor() string {
	if c.TargetColor == nil || *c.TargetColor == "" {
		return "red"
	}
	return *c.TargetColor
}

// GetCenterMarginPx returns the center_margin_px value or the default.
func (c *TurretConfig) GetCenterMarginPx() int {
	if c.CenterMarginPx == nil {
		return 100
	}
	return *c.CenterMarginPx
}

// GetYawNudge returns the yaw_nudge value or the default.
func (c *TurretConfig) GetYawNudge() int {
	if c.YawNudge == nil {
		return 25
	}
	return *c.YawNudge
}

// GetPulseOn parses and returns the fire-on window of the duty cycle.
func (c *TurretConfig) GetPulseOn() time.Duration {
	return c.duration(c.PulseOn, 400*time.Millisecond)
}

// GetPulseOff parses and returns the fire-off window of the duty cycle.
func (c *TurretConfig) GetPulseOff() time.Duration {
	return c.duration(c.PulseOff, 200*time.Millisecond)
}

// GetLossDebounce parses and returns the loss-confirmation window.
func (c *TurretConfig) GetLossDebounce() time.Duration {
	return c.duration(c.LossDebounce, time.Second)
}

// GetHTTPAddr returns the http_addr value or the default.
func (c *TurretConfig) GetHTTPAddr() string {
	if c.HTTPAddr == nil || *c.HTTPAddr == "" {
		return ":8080"
	}
	return *c.HTTPAddr
}

// GetDatabasePath returns the database_path value or the default.
func (c *TurretConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "sentry.db"
	}
	return *c.DatabasePath
}

// duration parses a duration pointer with a fallback for nil, empty, or
// unparseable values.
func (c *TurretConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
