// Package config loads the agent configuration from a TOML file with
// environment overrides. Resolution priority for every knob is: explicit
// runtime override (flag or ASTRA_* env) > config file > built-in default.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/harry0537/AstraBackup-sub001/internal/logger"
)

// Built-in defaults. They mirror the values the rover fleet has been
// flashed with; a missing config file must still produce a working agent.
const (
	DefaultDashboardHost  = "127.0.0.1"
	DefaultDashboardPort  = 8081
	DefaultLinkBaud       = 57600
	DefaultTelemetryEvery = 2 * time.Second
	DefaultImageEvery     = 60 * time.Second
	DefaultImageStale     = 90 * time.Second
	DefaultSnapshotPath   = "/tmp/proximity.json"
	DefaultSnapshotStale  = 10 * time.Second
	DefaultImageDir       = "/tmp/crop"
	DefaultImageQueueCap  = 32
	DefaultServerListen   = "127.0.0.1:8082"
	DefaultRelayListen    = "127.0.0.1:8083"
	DefaultRestartLimit   = 3
	DefaultPollEvery      = 5 * time.Second
	DefaultLaunchDelay    = 2 * time.Second
	DefaultStopGrace      = 5 * time.Second
)

type Dashboard struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BaseURL renders the relay endpoint root.
func (d Dashboard) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.Host, d.Port)
}

type Link struct {
	Port string `mapstructure:"port"` // explicit device path override
	Baud int    `mapstructure:"baud"`
}

type Relay struct {
	TelemetryEvery time.Duration `mapstructure:"telemetry_period"`
	ImageEvery     time.Duration `mapstructure:"image_period"`
	ImageStale     time.Duration `mapstructure:"image_stale_after"`
}

type Proximity struct {
	Snapshot   string        `mapstructure:"snapshot"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type Images struct {
	Dir      string `mapstructure:"dir"`
	QueueCap int    `mapstructure:"max_queue"`
}

type Server struct {
	Listen      string `mapstructure:"listen"`
	RelayListen string `mapstructure:"relay_listen"` // the relay process gets its own port
}

type Store struct {
	Path string `mapstructure:"path"` // empty disables the event log
}

type Supervisor struct {
	RestartLimit int           `mapstructure:"restart_limit"`
	PollEvery    time.Duration `mapstructure:"poll_period"`
	LaunchDelay  time.Duration `mapstructure:"launch_delay"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`
}

// Component declares one supervised process.
type Component struct {
	ID           int           `mapstructure:"id"`
	Name         string        `mapstructure:"name"`
	Command      string        `mapstructure:"command"`
	Critical     bool          `mapstructure:"critical"`
	Enabled      bool          `mapstructure:"enabled"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	HealthFile   string        `mapstructure:"health_file"`
	Env          []string      `mapstructure:"env"`
}

type Config struct {
	LogLevel   string        `mapstructure:"log_level"`
	GlobalEnv  []string      `mapstructure:"env"`
	Dashboard  Dashboard     `mapstructure:"dashboard"`
	Link       Link          `mapstructure:"link"`
	Relay      Relay         `mapstructure:"relay"`
	Proximity  Proximity     `mapstructure:"proximity"`
	Images     Images        `mapstructure:"images"`
	Log        logger.Config `mapstructure:"log"`
	Server     Server        `mapstructure:"server"`
	Store      Store         `mapstructure:"store"`
	Supervisor Supervisor    `mapstructure:"supervisor"`
	Components []Component   `mapstructure:"components"`
}

// Load reads the config file at path (optional; empty path means defaults
// plus environment only) and applies ASTRA_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dashboard.host", DefaultDashboardHost)
	v.SetDefault("dashboard.port", DefaultDashboardPort)
	v.SetDefault("link.baud", DefaultLinkBaud)
	v.SetDefault("relay.telemetry_period", DefaultTelemetryEvery)
	v.SetDefault("relay.image_period", DefaultImageEvery)
	v.SetDefault("relay.image_stale_after", DefaultImageStale)
	v.SetDefault("proximity.snapshot", DefaultSnapshotPath)
	v.SetDefault("proximity.stale_after", DefaultSnapshotStale)
	v.SetDefault("images.dir", DefaultImageDir)
	v.SetDefault("images.max_queue", DefaultImageQueueCap)
	v.SetDefault("server.listen", DefaultServerListen)
	v.SetDefault("server.relay_listen", DefaultRelayListen)
	v.SetDefault("log_level", "info")
	v.SetDefault("supervisor.restart_limit", DefaultRestartLimit)
	v.SetDefault("supervisor.poll_period", DefaultPollEvery)
	v.SetDefault("supervisor.launch_delay", DefaultLaunchDelay)
	v.SetDefault("supervisor.stop_grace", DefaultStopGrace)
}

// bindEnv wires the override names the rover scripts already export, so a
// deployed unit can repoint its dashboard without editing files.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("dashboard.host", "ASTRA_DASHBOARD_IP")
	_ = v.BindEnv("dashboard.port", "ASTRA_DASHBOARD_PORT")
	_ = v.BindEnv("link.port", "ASTRA_LINK_PORT")
	_ = v.BindEnv("link.baud", "ASTRA_LINK_BAUD")
}
