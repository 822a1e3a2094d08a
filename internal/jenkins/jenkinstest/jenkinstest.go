// Package jenkinstest provides a fake Jenkins server for tests.
package jenkinstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// Call is one request received by the fake server.
type Call struct {
	Method   string
	Path     string
	RawQuery string
}

func (c Call) String() string {
	if c.RawQuery == "" {
		return c.Method + " " + c.Path
	}
	return c.Method + " " + c.Path + "?" + c.RawQuery
}

type response struct {
	status int
	body   string
}

// Server is an httptest server answering a fixed set of Jenkins routes.
// Requests whose basic auth does not match User/Token get 401.
type Server struct {
	*httptest.Server
	User  string
	Token string

	mu     sync.Mutex
	calls  []Call
	routes map[string]response
	jobs   []string
}

// New starts a fake Jenkins with a working crumb issuer and an empty job list.
func New(t testing.TB, user, token string) *Server {
	t.Helper()
	s := &Server{User: user, Token: token, routes: map[string]response{}}
	s.Handle(http.MethodGet, "/crumbIssuer/api/json", http.StatusOK,
		`{"_class":"hudson.security.csrf.DefaultCrumbIssuer","crumb":"abc","crumbRequestField":"Jenkins-Crumb"}`)
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle registers a canned response for method and path.
func (s *Server) Handle(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = response{status: status, body: body}
}

// AddJob registers a job with its config.xml and next build number. Build
// triggers answer 201 Created like a real Jenkins.
func (s *Server) AddJob(name, configXML string, nextBuildNumber int) {
	s.mu.Lock()
	s.jobs = append(s.jobs, name)
	jobs := make([]map[string]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, map[string]string{"_class": "hudson.model.FreeStyleProject", "name": j})
	}
	s.mu.Unlock()

	list, _ := json.Marshal(map[string]any{"_class": "hudson.model.Hudson", "jobs": jobs})
	s.Handle(http.MethodGet, "/api/json", http.StatusOK, string(list))
	s.Handle(http.MethodGet, "/job/"+name+"/config.xml", http.StatusOK, configXML)
	s.Handle(http.MethodGet, "/job/"+name+"/api/json", http.StatusOK,
		fmt.Sprintf(`{"_class":"hudson.model.FreeStyleProject","name":%q,"nextBuildNumber":%d}`, name, nextBuildNumber))
	s.Handle(http.MethodPost, "/job/"+name+"/build", http.StatusCreated, "")
	s.Handle(http.MethodPost, "/job/"+name+"/buildWithParameters", http.StatusCreated, "")
}

// Calls returns the requests received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Query returns inbound query parameters pointing at this server.
func (s *Server) Query() url.Values {
	return url.Values{
		"jenkins_url":   {s.URL + "/"},
		"jenkins_user":  {s.User},
		"jenkins_token": {s.Token},
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	resp, ok := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if user, token, hasAuth := r.BasicAuth(); !hasAuth || user != s.User || token != s.Token {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}
