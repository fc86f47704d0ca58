// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// DefaultSection is the build-project config section holding the wifi keys.
const DefaultSection = "custom"

// DefaultTool is the network-control command used when wifi_tool is unset.
const DefaultTool = "m wifi"

// ErrConfigMissing is returned when a required key is absent.
var ErrConfigMissing = errors.New("required config key missing")

// Parser handles configuration file parsing.
type Parser struct {
	v       *viper.Viper
	section string
}

// NewParser creates a new configuration parser reading keys from section.
// An empty section selects DefaultSection.
func NewParser(section string) *Parser {
	if section == "" {
		section = DefaultSection
	}
	// PlatformIO files use indented continuation lines for lists such as
	// lib_deps, and only treat ; or # as a comment after whitespace.
	v := viper.NewWithOptions(viper.IniLoadOptions(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SpaceBeforeInlineComment:   true,
	}))
	return &Parser{v: v, section: section}
}

// LoadFile loads configuration from a file path. The format follows the
// file extension, so platformio.ini is read as INI.
func (p *Parser) LoadFile(path string) (*models.HookConfig, error) {
	p.v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		p.v.SetConfigType("ini")
	}

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads INI configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.HookConfig, error) {
	p.v.SetConfigType("ini")
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) key(name string) string {
	return p.section + "." + name
}

// required returns the value of a key that must be present. Present but
// empty values are allowed when allowEmpty is set.
func (p *Parser) required(name string, allowEmpty bool) (string, error) {
	k := p.key(name)
	if !p.v.IsSet(k) {
		return "", fmt.Errorf("%w: %s", ErrConfigMissing, k)
	}
	val := p.expandEnv(p.v.GetString(k))
	if val == "" && !allowEmpty {
		return "", fmt.Errorf("%w: %s is empty", ErrConfigMissing, k)
	}
	return val, nil
}

//nolint:gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.HookConfig, error) {
	cfg := &models.HookConfig{
		Section: p.section,
		Tool:    strings.TrimSpace(p.v.GetString(p.key("wifi_tool"))),
	}
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}

	var err error
	if cfg.Device.SSID, err = p.required("esp_wifi_ssid", false); err != nil {
		return nil, err
	}
	if cfg.Device.Password, err = p.required("esp_wifi_password", true); err != nil {
		return nil, err
	}
	if cfg.Home.SSID, err = p.required("home_wifi_name", false); err != nil {
		return nil, err
	}
	if cfg.Home.Password, err = p.required("home_wifi_password", true); err != nil {
		return nil, err
	}

	// Parse retry policy, falling back to defaults per field.
	def := models.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts, err = p.intValue("wifi_max_attempts", def.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Retry.StatusRetries, err = p.intValue("wifi_status_retries", def.StatusRetries); err != nil {
		return nil, err
	}
	if cfg.Retry.Delay, err = p.durationValue("wifi_retry_delay", def.Delay); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = p.durationValue("wifi_max_retry_delay", def.MaxDelay); err != nil {
		return nil, err
	}
	if cfg.Retry.Multiplier, err = p.floatValue("wifi_retry_multiplier", def.Multiplier); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay < cfg.Retry.Delay {
		cfg.Retry.MaxDelay = cfg.Retry.Delay
	}

	if cfg.Retry.MaxAttempts < 0 {
		return nil, fmt.Errorf("%s must not be negative", p.key("wifi_max_attempts"))
	}
	if cfg.Retry.StatusRetries < 0 {
		return nil, fmt.Errorf("%s must not be negative", p.key("wifi_status_retries"))
	}
	if cfg.Retry.Multiplier < 1 {
		return nil, fmt.Errorf("%s must be at least 1", p.key("wifi_retry_multiplier"))
	}

	// Parse optional remote runner config.
	if host := p.v.GetString(p.key("wifi_remote_host")); host != "" {
		if cfg.Remote, err = p.parseRemote(host); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (p *Parser) parseRemote(host string) (*models.RemoteConfig, error) {
	remote := &models.RemoteConfig{
		Host:     host,
		Username: p.v.GetString(p.key("wifi_remote_user")),
		KeyPath:  p.expandEnv(p.v.GetString(p.key("wifi_remote_key_path"))),
	}

	var err error
	if remote.Port, err = p.intValue("wifi_remote_port", 22); err != nil {
		return nil, err
	}
	if remote.Port <= 0 || remote.Port > 65535 {
		return nil, fmt.Errorf("%s: port %d out of range", p.key("wifi_remote_port"), remote.Port)
	}
	if remote.Username == "" {
		remote.Username = "root"
	}
	if remote.KeyPath == "" {
		return nil, fmt.Errorf("%w: %s is required when %s is set",
			ErrConfigMissing, p.key("wifi_remote_key_path"), p.key("wifi_remote_host"))
	}

	mac := p.v.GetString(p.key("wifi_remote_wake_mac"))
	if mac == "" {
		return remote, nil
	}

	wake := &models.WakeConfig{
		MACAddress:  mac,
		BroadcastIP: p.v.GetString(p.key("wifi_remote_broadcast_ip")),
	}
	if wake.BroadcastIP == "" {
		wake.BroadcastIP = "255.255.255.255"
	}
	if wake.Timeout, err = p.durationValue("wifi_remote_wake_timeout", 2*time.Minute); err != nil {
		return nil, err
	}
	if wake.PollInterval, err = p.durationValue("wifi_remote_poll_interval", 5*time.Second); err != nil {
		return nil, err
	}
	if wake.StabilizeWait, err = p.durationValue("wifi_remote_stabilize_wait", 5*time.Second); err != nil {
		return nil, err
	}
	remote.Wake = wake

	return remote, nil
}

// raw returns the trimmed string form of an optional key, empty when unset.
func (p *Parser) raw(name string) string {
	k := p.key(name)
	if !p.v.IsSet(k) {
		return ""
	}
	return strings.TrimSpace(cast.ToString(p.v.Get(k)))
}

func (p *Parser) intValue(name string, def int) (int, error) {
	s := p.raw(name)
	if s == "" {
		return def, nil
	}
	n, err := cast.ToIntE(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", p.key(name), s)
	}
	return n, nil
}

func (p *Parser) floatValue(name string, def float64) (float64, error) {
	s := p.raw(name)
	if s == "" {
		return def, nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", p.key(name), s)
	}
	return f, nil
}

// durationValue parses a Go duration such as 500ms or 2m. A bare number is
// taken as seconds. Zero selects def.
func (p *Parser) durationValue(name string, def time.Duration) (time.Duration, error) {
	s := p.raw(name)
	if s == "" {
		return def, nil
	}

	var d time.Duration
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("%s: invalid duration %q", p.key(name), s)
		}
		d = time.Duration(secs * float64(time.Second))
	} else if d, err = cast.ToDurationE(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", p.key(name), s)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", p.key(name))
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references to variables that are set. Anything
// else, including a bare $ in a password, is kept verbatim.
func (p *Parser) expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(envRef.FindStringSubmatch(ref)[1]); ok {
			return val
		}
		return ref
	})
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.HookConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Tool == "" {
		return fmt.Errorf("wifi_tool is required")
	}

	if cfg.Device.SSID == "" {
		return fmt.Errorf("%w: esp_wifi_ssid", ErrConfigMissing)
	}

	if cfg.Home.SSID == "" {
		return fmt.Errorf("%w: home_wifi_name", ErrConfigMissing)
	}

	if cfg.Remote != nil && cfg.Remote.Host == "" {
		return fmt.Errorf("remote host is required when remote is configured")
	}

	return nil
}
