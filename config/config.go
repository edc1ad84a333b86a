package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/scrobbler-proxy/internal/circuitbreaker"
	"github.com/angeloszaimis/scrobbler-proxy/internal/proxycache"
	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type LastFMConfig struct {
	APIKey      string `mapstructure:"api_key"`
	User        string `mapstructure:"user"`
	TracksLimit string `mapstructure:"tracks_limit"`
	BaseURL     string `mapstructure:"base_url"`
	UserAgent   string `mapstructure:"user_agent"`
}

type UpstreamConfig struct {
	// Timeout is a duration string. "0s" disables the timeout.
	Timeout string `mapstructure:"timeout"`
}

type CORSConfig struct {
	// AllowHostnames is a semicolon separated hostname list.
	AllowHostnames string `mapstructure:"allow_hostnames"`
}

type StaticConfig struct {
	Dir string `mapstructure:"dir"`
}

// WindowConfig holds cooldowns in seconds.
type WindowConfig struct {
	OK                    int `mapstructure:"ok"`
	FailedWithFallback    int `mapstructure:"failed_with_fallback"`
	FailedWithoutFallback int `mapstructure:"failed_without_fallback"`
}

type WaitConfig struct {
	GetInfo         WindowConfig `mapstructure:"getinfo"`
	GetRecentTracks WindowConfig `mapstructure:"getrecenttracks"`
	// Hibernate is in seconds.
	Hibernate int `mapstructure:"hibernate"`
}

type HibernateConfig struct {
	FatalCodes []int `mapstructure:"fatal_codes"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	LastFM    LastFMConfig    `mapstructure:"lastfm"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Static    StaticConfig    `mapstructure:"static"`
	Wait      WaitConfig      `mapstructure:"wait"`
	Hibernate HibernateConfig `mapstructure:"hibernate"`
}

// legacyEnv binds keys to the variable names older deployments use.
var legacyEnv = map[string][]string{
	"lastfm.api_key":       {"LASTFM_API_KEY", "AUDIOSCROBBLER_APIKEY", "audioscrobbler_apikey"},
	"lastfm.user":          {"LASTFM_USER", "AUDIOSCROBBLER_USER", "audioscrobbler_user"},
	"lastfm.tracks_limit":  {"LASTFM_TRACKS_LIMIT", "AUDIOSCROBBLER_TRACKSLIMIT", "audioscrobbler_trackslimit"},
	"cors.allow_hostnames": {"CORS_ALLOW_HOSTNAMES", "AUDIOSCROBBLER_CORS_ALLOW_HOSTNAMES", "audioscrobbler_cors_allow_hostnames"},
}

func setDefaults(v *viper.Viper) {
	defaults := proxycache.DefaultWaitPolicy()
	getInfo := defaults.Methods[upstream.MethodUserGetInfo]
	recent := defaults.Methods[upstream.MethodUserGetRecentTracks]

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.user", upstream.DefaultUser)
	v.SetDefault("lastfm.tracks_limit", "")
	v.SetDefault("lastfm.base_url", upstream.DefaultBaseURL)
	v.SetDefault("lastfm.user_agent", upstream.DefaultUserAgent)
	v.SetDefault("upstream.timeout", "0s")
	v.SetDefault("cors.allow_hostnames", "")
	v.SetDefault("static.dir", "./public")
	v.SetDefault("wait.getinfo.ok", seconds(getInfo.OK))
	v.SetDefault("wait.getinfo.failed_with_fallback", seconds(getInfo.FailedWithFallback))
	v.SetDefault("wait.getinfo.failed_without_fallback", seconds(getInfo.FailedWithoutFallback))
	v.SetDefault("wait.getrecenttracks.ok", seconds(recent.OK))
	v.SetDefault("wait.getrecenttracks.failed_with_fallback", seconds(recent.FailedWithFallback))
	v.SetDefault("wait.getrecenttracks.failed_without_fallback", seconds(recent.FailedWithoutFallback))
	v.SetDefault("wait.hibernate", seconds(defaults.Hibernate))
	v.SetDefault("hibernate.fatal_codes", circuitbreaker.DefaultFatalCodes)
}

// Load reads defaults, then the config file, then the environment. An empty
// configFile searches ./config and the working directory for config.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.LastFM.APIKey = strings.TrimSpace(cfg.LastFM.APIKey)
	cfg.LastFM.TracksLimit = strings.TrimSpace(cfg.LastFM.TracksLimit)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every field. A missing API key is accepted: the proxy
// answers each request with a dedicated error instead.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.LastFM,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LastFMConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LastFMConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.User, validation.Required),
					validation.Field(&lc.TracksLimit, is.Digit),
					validation.Field(&lc.BaseURL,
						validation.Required,
						validation.By(validateServerURL),
					),
					validation.Field(&lc.UserAgent, validation.Required),
				)
			}),
		),
		validation.Field(&c.Upstream,
			validation.By(func(value interface{}) error {
				uc, ok := value.(UpstreamConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
				}
				return validation.ValidateStruct(&uc,
					validation.Field(&uc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Wait,
			validation.By(func(value interface{}) error {
				wc, ok := value.(WaitConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a WaitConfig")
				}
				return validation.ValidateStruct(&wc,
					validation.Field(&wc.GetInfo, validation.By(validateWindow)),
					validation.Field(&wc.GetRecentTracks, validation.By(validateWindow)),
					validation.Field(&wc.Hibernate, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Hibernate,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HibernateConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HibernateConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.FatalCodes, validation.Each(validation.Min(1))),
				)
			}),
		),
	)
}

// UpstreamTimeout parses the validated timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	d, err := time.ParseDuration(c.Upstream.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *Config) UpstreamClientConfig() upstream.Config {
	return upstream.Config{
		BaseURL:     c.LastFM.BaseURL,
		APIKey:      c.LastFM.APIKey,
		User:        c.LastFM.User,
		TracksLimit: c.LastFM.TracksLimit,
		UserAgent:   c.LastFM.UserAgent,
		Timeout:     c.UpstreamTimeout(),
	}
}

func (c *Config) WaitPolicy() proxycache.WaitPolicy {
	return proxycache.WaitPolicy{
		Methods: map[string]proxycache.Windows{
			upstream.MethodUserGetInfo:         c.Wait.GetInfo.windows(),
			upstream.MethodUserGetRecentTracks: c.Wait.GetRecentTracks.windows(),
		},
		Hibernate: time.Duration(c.Wait.Hibernate) * time.Second,
	}
}

func (c *Config) AllowList() proxycache.AllowList {
	return proxycache.ParseAllowList(c.CORS.AllowHostnames)
}

func (w WindowConfig) windows() proxycache.Windows {
	return proxycache.Windows{
		OK:                    time.Duration(w.OK) * time.Second,
		FailedWithFallback:    time.Duration(w.FailedWithFallback) * time.Second,
		FailedWithoutFallback: time.Duration(w.FailedWithoutFallback) * time.Second,
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func validateWindow(value interface{}) error {
	w, ok := value.(WindowConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a WindowConfig")
	}
	return validation.ValidateStruct(&w,
		validation.Field(&w.OK, validation.Min(0)),
		validation.Field(&w.FailedWithFallback, validation.Min(0)),
		validation.Field(&w.FailedWithoutFallback, validation.Min(0)),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 0s, 5s, 1m)")
	}
	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
