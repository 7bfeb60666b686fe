package server

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	DevMode  bool   `mapstructure:"dev_mode"`
	ReadOnly bool   `mapstructure:"read_only"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.read_only", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/fleetbridge.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")

	// Plugin defaults
	v.SetDefault("plugins.roster.enabled", true)
	v.SetDefault("plugins.roster.passphrase", "")
	v.SetDefault("plugins.vitals.enabled", true)
	v.SetDefault("plugins.vitals.edge_offline_threshold", "60s")
	v.SetDefault("plugins.vitals.sensor_offline_threshold", "5m")
	v.SetDefault("plugins.vitals.sweep_interval", "5s")
	v.SetDefault("plugins.uplink.enabled", true)
	v.SetDefault("plugins.uplink.dial_timeout", "10s")
	v.SetDefault("plugins.uplink.keepalive_interval", "15s")
	v.SetDefault("plugins.uplink.keepalive_max_misses", 3)
	v.SetDefault("plugins.uplink.idle_ttl", "10m")
	v.SetDefault("plugins.uplink.backoff_base", "2s")
	v.SetDefault("plugins.uplink.backoff_cap", "60s")
	v.SetDefault("plugins.uplink.command_timeout", "30s")
	v.SetDefault("plugins.uplink.probe_on_failure", true)
	v.SetDefault("plugins.uplink.ssh_config_path", "")
	v.SetDefault("plugins.console.enabled", true)
	v.SetDefault("plugins.console.max_sessions_per_device", 4)
	v.SetDefault("plugins.console.output_chunk_bytes", 4096)
	v.SetDefault("plugins.console.exec_timeout", "30s")
	v.SetDefault("plugins.console.read_limit_bytes", 2097152)
	v.SetDefault("plugins.relay.enabled", true)
	v.SetDefault("plugins.relay.send_buffer", 256)
	v.SetDefault("plugins.rollout.enabled", true)
	v.SetDefault("plugins.rollout.max_concurrent", 4)
	v.SetDefault("plugins.rollout.step_timeout", "5m")
	v.SetDefault("plugins.rollout.exec_timeout", "30s")
	v.SetDefault("plugins.rollout.upload_base_timeout", "30s")
	v.SetDefault("plugins.rollout.upload_bytes_per_sec", 1048576)
	v.SetDefault("plugins.rollout.artifact_dir", "./artifacts")
	v.SetDefault("plugins.rollout.install_command", "chmod +x {artifact}")
	v.SetDefault("plugins.rollout.start_command", "nohup ./{artifact} > {artifact}.log 2>&1 & echo started")
	v.SetDefault("plugins.rollout.history_limit", 100)
	v.SetDefault("plugins.webhook.enabled", true)
	v.SetDefault("plugins.webhook.url", "")
	v.SetDefault("plugins.webhook.timeout", "10s")
	v.SetDefault("plugins.flux.enabled", false)
	v.SetDefault("plugins.flux.url", "http://localhost:8086")
	v.SetDefault("plugins.flux.token", "")
	v.SetDefault("plugins.flux.org", "fleetbridge")
	v.SetDefault("plugins.flux.bucket", "device_metrics")
	v.SetDefault("plugins.flux.batch_size", 100)
	v.SetDefault("plugins.flux.flush_interval_ms", 1000)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fleetbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fleetbridge")
	}

	// Environment variable support: FB_SERVER_PORT=9090
	v.SetEnvPrefix("FB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
