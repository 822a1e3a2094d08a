// Package config binds command-line flags and JENKINS_MCP_* environment
// variables into the process settings.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/simonfxr/jenkins-trigger-mcp/internal/jenkins"
)

// EnvPrefix is prepended to every environment variable, e.g. JENKINS_MCP_HTTP.
const EnvPrefix = "JENKINS_MCP"

// DefaultHTTPAddr is the listen address when neither flag nor env sets one.
const DefaultHTTPAddr = "0.0.0.0:10080"

const (
	keyHTTP      = "http"
	keyStdio     = "stdio"
	keyLogLevel  = "log-level"
	keyLogFormat = "log-format"
	keyURL       = "url"
	keyUser      = "user"
	keyToken     = "token"
	keyAuth      = "auth"
)

// Config holds the process settings. Jenkins credentials here are only used
// where no inbound HTTP request exists to carry them (stdio and the jobs
// command).
type Config struct {
	HTTPAddr  string
	Stdio     bool
	LogLevel  string
	LogFormat string

	JenkinsURL   string
	JenkinsUser  string
	JenkinsToken string
}

// RegisterServeFlags adds the transport and logging flags to fs.
func RegisterServeFlags(fs *pflag.FlagSet) {
	fs.String(keyHTTP, DefaultHTTPAddr, "listen address for the streamable HTTP transport")
	fs.Bool(keyStdio, false, "serve MCP over stdin/stdout instead of HTTP")
	RegisterLogFlags(fs)
	RegisterJenkinsFlags(fs)
}

// RegisterLogFlags adds --log-level and --log-format to fs.
func RegisterLogFlags(fs *pflag.FlagSet) {
	fs.String(keyLogLevel, "info", "log level: debug, info, warn, error")
	fs.String(keyLogFormat, "text", "log format: text or json")
}

// RegisterJenkinsFlags adds the Jenkins connection flags to fs.
func RegisterJenkinsFlags(fs *pflag.FlagSet) {
	fs.String(keyURL, "", "Jenkins URL (stdio and jobs only)")
	fs.String(keyUser, "", "Jenkins user (stdio and jobs only)")
	fs.String(keyToken, "", "Jenkins API token (stdio and jobs only)")
	fs.String(keyAuth, "", "Jenkins authentication as 'user:api_token', alternative to --user/--token")
}

// Load reads the settings from fs, falling back to the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(keyHTTP, DefaultHTTPAddr)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := &Config{
		HTTPAddr:     v.GetString(keyHTTP),
		Stdio:        v.GetBool(keyStdio),
		LogLevel:     v.GetString(keyLogLevel),
		LogFormat:    v.GetString(keyLogFormat),
		JenkinsURL:   v.GetString(keyURL),
		JenkinsUser:  v.GetString(keyUser),
		JenkinsToken: v.GetString(keyToken),
	}

	if auth := v.GetString(keyAuth); auth != "" {
		user, token, ok := strings.Cut(auth, ":")
		if !ok {
			return nil, fmt.Errorf("%w: --auth must be in format 'user:api_token'", jenkins.ErrConfiguration)
		}
		if cfg.JenkinsUser == "" {
			cfg.JenkinsUser = user
		}
		if cfg.JenkinsToken == "" {
			cfg.JenkinsToken = token
		}
	}
	return cfg, nil
}

// JenkinsSource presents the configured credentials the same way an inbound
// request's query string would.
func (c *Config) JenkinsSource() jenkins.Source {
	return url.Values{
		jenkins.ParamURL:   {c.JenkinsURL},
		jenkins.ParamUser:  {c.JenkinsUser},
		jenkins.ParamToken: {c.JenkinsToken},
	}
}
