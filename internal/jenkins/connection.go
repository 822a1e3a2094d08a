package jenkins

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

// Query parameter names carrying Jenkins credentials on an inbound request.
const (
	ParamURL   = "jenkins_url"
	ParamUser  = "jenkins_user"
	ParamToken = "jenkins_token"
)

// Source supplies connection parameters by name. url.Values satisfies it.
type Source interface {
	Get(key string) string
}

// Connection identifies a Jenkins server and the credentials used against it.
// It is built per request and never stored.
type Connection struct {
	BaseURL string
	User    string
	Token   string
}

// ConnectionFrom reads the three required parameters from src without
// touching the network. The base URL has trailing slashes removed.
func ConnectionFrom(src Source) (Connection, error) {
	var conn Connection
	if src == nil {
		return conn, missingParameter(ParamURL)
	}
	if conn.BaseURL = strings.TrimRight(src.Get(ParamURL), "/"); conn.BaseURL == "" {
		return Connection{}, missingParameter(ParamURL)
	}
	if conn.User = src.Get(ParamUser); conn.User == "" {
		return Connection{}, missingParameter(ParamUser)
	}
	if conn.Token = src.Get(ParamToken); conn.Token == "" {
		return Connection{}, missingParameter(ParamToken)
	}
	return conn, nil
}

// Resolve builds a Connection from src and verifies that it authenticates
// against the crumb issuer before handing it out.
func Resolve(ctx context.Context, src Source) (Connection, error) {
	conn, err := ConnectionFrom(src)
	if err != nil {
		return Connection{}, err
	}
	if !NewClient(conn).Validate(ctx) {
		log.FromContext(ctx).Warn("jenkins credential probe failed", "url", conn.BaseURL, "user", conn.User)
		return Connection{}, ErrAuthentication
	}
	return conn, nil
}
