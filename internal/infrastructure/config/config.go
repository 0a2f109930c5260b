package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	sharedConfig "tunnelctl/internal/shared/config"
)

// Config is the controller's complete, typed configuration tree, loaded
// from a TOML file with environment-variable overrides.
type Config struct {
	HTTP    sharedConfig.HTTPConfig     `mapstructure:"http"`
	App     sharedConfig.AppConfig      `mapstructure:"app"`
	Cache   sharedConfig.CacheConfig    `mapstructure:"cache"`
	Master  sharedConfig.MasterConfig   `mapstructure:"master"`
	Logger  sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Servers []sharedConfig.ServerConfig `mapstructure:"server"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads the TOML configuration file and environment overrides into a
// Config, storing it as the process-wide singleton retrievable via Get.
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("TUNNELCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if env != "" && env != "default" {
		viper.Set("http.mode", env)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		portRangeDecodeHook,
	))
	if err := viper.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &cfg
	appConfigMu.Unlock()

	return &cfg, nil
}

// Get returns the process-wide configuration loaded by Load.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// portRangeDecodeHook maps a two-element array or slice (as TOML's
// port_range = [10000, 20000] decodes to) onto sharedConfig.PortRange.
// mapstructure has no built-in way to spread a sequence across a named
// struct's fields, so this fills that one gap.
func portRangeDecodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(sharedConfig.PortRange{}) {
		return data, nil
	}
	if from.Kind() != reflect.Slice && from.Kind() != reflect.Array {
		return data, nil
	}

	v := reflect.ValueOf(data)
	if v.Len() != 2 {
		return data, fmt.Errorf("port_range must have exactly 2 elements, got %d", v.Len())
	}
	lo, err := toInt(v.Index(0).Interface())
	if err != nil {
		return data, fmt.Errorf("port_range[0]: %w", err)
	}
	hi, err := toInt(v.Index(1).Interface())
	if err != nil {
		return data, fmt.Errorf("port_range[1]: %w", err)
	}
	return sharedConfig.PortRange{Lo: lo, Hi: hi}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported port_range element type %T", v)
	}
}

func setDefaults() {
	viper.SetDefault("http.host", "0.0.0.0")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.mode", "release")

	viper.SetDefault("app.cleanup_interval", 60)

	viper.SetDefault("cache.url", "")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")
}
