// Package redact scrubs Jenkins credentials out of text before it is logged or
// returned to a tool caller.
package redact

import (
	"cmp"
	"encoding/base64"
	"errors"
	"net/url"
	"slices"
	"strings"
)

const mask = "[REDACTED]"

// Credentials masks one Jenkins API token wherever it appears: verbatim, as
// the value of a basic auth header, and as the password of a URL. The zero
// value and a nil *Credentials redact nothing.
type Credentials struct {
	secrets []string
}

// ForCredentials returns a redactor for user and token. An empty token
// yields a redactor that leaves text unchanged.
func ForCredentials(user, token string) *Credentials {
	c := &Credentials{}
	if token == "" {
		return c
	}
	c.secrets = []string{
		base64.StdEncoding.EncodeToString([]byte(user + ":" + token)),
		token,
		url.QueryEscape(token),
	}
	slices.SortFunc(c.secrets, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	c.secrets = slices.Compact(c.secrets)
	return c
}

// String masks every known form of the token in s.
func (c *Credentials) String(s string) string {
	if c == nil {
		return s
	}
	for _, secret := range c.secrets {
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}

// URL masks the userinfo password of raw and then any token left in it.
func (c *Credentials) URL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		raw = u.Redacted()
	}
	return c.String(raw)
}

// Error returns err unchanged when its message holds no secret, so that the
// chain stays inspectable with errors.Is. Otherwise the message is masked
// and the chain is cut.
func (c *Credentials) Error(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if masked := c.String(msg); masked != msg {
		return errors.New(masked)
	}
	return err
}
