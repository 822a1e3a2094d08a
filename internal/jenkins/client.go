package jenkins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/simonfxr/jenkins-trigger-mcp/internal/redact"
)

// RequestTimeout bounds every Jenkins call, including the credential probe.
const RequestTimeout = 5 * time.Second

// Client performs Jenkins REST calls for a single Connection. It keeps no
// state between calls: every call opens its own transport and closes it
// before returning.
type Client struct {
	conn     Connection
	timeout  time.Duration
	redactor *redact.Credentials
}

// NewClient returns a client bound to conn.
func NewClient(conn Connection) *Client {
	return &Client{conn: conn, timeout: RequestTimeout, redactor: redact.ForCredentials(conn.User, conn.Token)}
}

// BaseURL is the Jenkins root without a trailing slash.
func (c *Client) BaseURL() string { return c.conn.BaseURL }

// JobURL is the browsable URL of a job. Names are used as given, unescaped.
func (c *Client) JobURL(name string) string { return c.conn.BaseURL + "/job/" + name }

// callJenkins issues one request with basic auth and returns the response
// body. Any transport error or non-2xx status becomes an *UpstreamError.
func (c *Client) callJenkins(ctx context.Context, method, apiPath, accept string) ([]byte, int, error) {
	fullURL := c.conn.BaseURL + apiPath

	transport := http.DefaultTransport.(*http.Transport).Clone()
	defer transport.CloseIdleConnections()
	hc := &http.Client{Transport: transport, Timeout: c.timeout}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, 0, c.upstream(method, fullURL, 0, "", err)
	}
	req.SetBasicAuth(c.conn.User, c.conn.Token)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, c.upstream(method, fullURL, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	log.FromContext(ctx).Debug("jenkins call", "method", method, "path", apiPath, "status", resp.StatusCode, "took", time.Since(start))
	if err != nil {
		return nil, resp.StatusCode, c.upstream(method, fullURL, resp.StatusCode, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, c.upstream(method, fullURL, resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) upstream(method, fullURL string, status int, body string, err error) *UpstreamError {
	return &UpstreamError{
		Method:     method,
		URL:        c.redactor.URL(fullURL),
		StatusCode: status,
		Body:       c.redactor.String(body),
		Err:        c.redactor.Error(err),
	}
}

// Validate probes the crumb issuer. It reports false on any failure and
// never returns the underlying error.
func (c *Client) Validate(ctx context.Context) bool {
	_, status, err := c.callJenkins(ctx, http.MethodGet, "/crumbIssuer/api/json", "application/json")
	return err == nil && status == http.StatusOK
}

// GetJobs returns the top-level job names in the order Jenkins lists them.
func (c *Client) GetJobs(ctx context.Context) ([]string, error) {
	body, _, err := c.callJenkins(ctx, http.MethodGet, "/api/json", "application/json")
	if err != nil {
		return nil, err
	}
	var apiResp struct {
		Jobs []struct {
			Name string `json:"name"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}
	names := make([]string, 0, len(apiResp.Jobs))
	for _, j := range apiResp.Jobs {
		names = append(names, j.Name)
	}
	return names, nil
}

// JobConfig returns the raw config.xml of a job.
func (c *Client) JobConfig(ctx context.Context, name string) (string, error) {
	body, _, err := c.callJenkins(ctx, http.MethodGet, "/job/"+name+"/config.xml", "application/xml")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// JobInfo is the decoded /job/{name}/api/json object.
type JobInfo map[string]any

// NextBuildNumber is the number Jenkins will assign to the next build.
func (i JobInfo) NextBuildNumber() (int, error) {
	raw, ok := i["nextBuildNumber"]
	if !ok {
		return 0, errors.New("job info has no nextBuildNumber")
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("job info nextBuildNumber is %T, not a number", raw)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("job info nextBuildNumber %q: %w", n, err)
	}
	return int(v), nil
}

// JobInfo fetches the JSON description of a job.
func (c *Client) JobInfo(ctx context.Context, name string) (JobInfo, error) {
	body, _, err := c.callJenkins(ctx, http.MethodGet, "/job/"+name+"/api/json", "application/json")
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var info JobInfo
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode job info: %w", err)
	}
	return info, nil
}

// BuildJob triggers a parameterless build. The bool reports whether Jenkins
// answered 200 OK; other 2xx codes (Jenkins usually sends 201) are not errors.
func (c *Client) BuildJob(ctx context.Context, name string) (bool, error) {
	_, status, err := c.callJenkins(ctx, http.MethodPost, "/job/"+name+"/build", "")
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// BuildWithParams triggers a build through buildWithParameters with params
// encoded into the query string. An empty map sends no query string.
func (c *Client) BuildWithParams(ctx context.Context, name string, params map[string]string) (bool, error) {
	_, status, err := c.callJenkins(ctx, http.MethodPost, "/job/"+name+"/buildWithParameters"+encodeQuery(params), "")
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

func encodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return "?" + q.Encode()
}
