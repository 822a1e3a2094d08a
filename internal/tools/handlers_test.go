package tools

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/simonfxr/jenkins-trigger-mcp/internal/jenkins"
	"github.com/simonfxr/jenkins-trigger-mcp/internal/jenkins/jenkinstest"
)

const (
	plainConfig = `<?xml version='1.1' encoding='UTF-8'?><project><properties/></project>`
	paramConfig = `<?xml version='1.1' encoding='UTF-8'?>
<project>
  <properties>
    <hudson.model.ParametersDefinitionProperty>
      <parameterDefinitions>
        <hudson.model.StringParameterDefinition>
          <name>BRANCH</name>
          <description>branch to build</description>
          <defaultValue>main</defaultValue>
        </hudson.model.StringParameterDefinition>
        <hudson.model.ChoiceParameterDefinition>
          <name>ENV</name>
          <choices class="java.util.Arrays$ArrayList">
            <a class="string-array"><string>dev</string><string>prod</string></a>
          </choices>
        </hudson.model.ChoiceParameterDefinition>
      </parameterDefinitions>
    </hudson.model.ParametersDefinitionProperty>
  </properties>
</project>`
)

func newHandlers() *Handlers {
	return &Handlers{}
}

func connTo(t *testing.T, srv *jenkinstest.Server) jenkins.Connection {
	t.Helper()
	conn, err := jenkins.ConnectionFrom(srv.Query())
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func postCalls(srv *jenkinstest.Server) []string {
	var out []string
	for _, c := range srv.Calls() {
		if c.Method == http.MethodPost {
			out = append(out, c.String())
		}
	}
	return out
}

func TestGetJobs(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("build", plainConfig, 7)
	srv.AddJob("deploy", paramConfig, 3)
	srv.AddJob("empty-prop", `<project><hudson.model.ParametersDefinitionProperty/></project>`, 1)

	jobs, err := newHandlers().GetJobs(context.Background(), connTo(t, srv))
	if err != nil {
		t.Fatalf("GetJobs: %v", err)
	}

	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	if !slices.Equal(names, []string{"build", "deploy", "empty-prop"}) {
		t.Fatalf("names = %q", names)
	}
	if jobs[0].HasParam || len(jobs[0].Parameters) != 0 {
		t.Errorf("build: %+v", jobs[0])
	}
	if !jobs[1].HasParam || len(jobs[1].Parameters) != 2 {
		t.Fatalf("deploy: %+v", jobs[1])
	}
	if p := jobs[1].Parameters[1]; p.Type != "ChoiceParameterDefinition" || !slices.Equal(p.Choices, []string{"dev", "prod"}) {
		t.Errorf("deploy ENV: %+v", p)
	}
	if !jobs[2].HasParam || len(jobs[2].Parameters) != 0 {
		t.Errorf("empty-prop: %+v", jobs[2])
	}
}

func TestGetJobsAbortsOnConfigFailure(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("ok", plainConfig, 1)
	srv.AddJob("broken", plainConfig, 1)
	srv.AddJob("later", plainConfig, 1)
	srv.Handle(http.MethodGet, "/job/broken/config.xml", http.StatusForbidden, "nope")

	jobs, err := newHandlers().GetJobs(context.Background(), connTo(t, srv))
	var ue *jenkins.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusForbidden {
		t.Fatalf("error = %v", err)
	}
	if jobs != nil {
		t.Fatalf("expected no partial results, got %+v", jobs)
	}
	for _, c := range srv.Calls() {
		if c.Path == "/job/later/config.xml" {
			t.Fatal("listing continued after a failed job")
		}
	}
}

func TestGetJobsMalformedConfig(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("bad", "<project>", 1)

	_, err := newHandlers().GetJobs(context.Background(), connTo(t, srv))
	if !errors.Is(err, jenkins.ErrMalformedConfig) {
		t.Fatalf("error = %v", err)
	}
}

func TestTriggerBuildWithoutParameters(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", plainConfig, 42)

	res, err := newHandlers().TriggerBuild(context.Background(), connTo(t, srv), "deploy", map[string]string{"IGNORED": "1"})
	if err != nil {
		t.Fatalf("TriggerBuild: %v", err)
	}
	want := BuildResult{
		JobName:     "deploy",
		JobURL:      srv.URL + "/job/deploy",
		BuildNumber: 42,
		BuildURL:    srv.URL + "/job/deploy/42",
	}
	if *res != want {
		t.Fatalf("result = %+v\nwant     %+v", *res, want)
	}
	if got := postCalls(srv); !slices.Equal(got, []string{"POST /job/deploy/build"}) {
		t.Fatalf("posts = %q", got)
	}
}

func TestTriggerBuildWithParameters(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", paramConfig, 5)

	_, err := newHandlers().TriggerBuild(context.Background(), connTo(t, srv), "deploy", map[string]string{"ENV": "prod", "BRANCH": "release/1"})
	if err != nil {
		t.Fatalf("TriggerBuild: %v", err)
	}
	want := []string{"POST /job/deploy/buildWithParameters?BRANCH=release%2F1&ENV=prod"}
	if got := postCalls(srv); !slices.Equal(got, want) {
		t.Fatalf("posts = %q", got)
	}
}

func TestTriggerBuildParameterizedJobWithoutArguments(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", paramConfig, 5)

	if _, err := newHandlers().TriggerBuild(context.Background(), connTo(t, srv), "deploy", nil); err != nil {
		t.Fatalf("TriggerBuild: %v", err)
	}
	if got := postCalls(srv); !slices.Equal(got, []string{"POST /job/deploy/buildWithParameters"}) {
		t.Fatalf("posts = %q", got)
	}
}

func TestTriggerBuildQueriesInfoBeforeSubmitting(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", plainConfig, 9)

	if _, err := newHandlers().TriggerBuild(context.Background(), connTo(t, srv), "deploy", nil); err != nil {
		t.Fatalf("TriggerBuild: %v", err)
	}
	var seq []string
	for _, c := range srv.Calls() {
		seq = append(seq, c.String())
	}
	want := []string{
		"GET /job/deploy/api/json",
		"GET /job/deploy/config.xml",
		"POST /job/deploy/build",
	}
	if !slices.Equal(seq, want) {
		t.Fatalf("calls = %q\nwant    %q", seq, want)
	}
}

func TestTriggerBuildUpstreamFailure(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", plainConfig, 1)
	srv.Handle(http.MethodPost, "/job/deploy/build", http.StatusInternalServerError, "")

	_, err := newHandlers().TriggerBuild(context.Background(), connTo(t, srv), "deploy", nil)
	var ue *jenkins.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v", err)
	}
}

func TestTriggerBuildWaitsAfterSubmission(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", plainConfig, 1)

	h := &Handlers{settle: 150 * time.Millisecond}
	start := time.Now()
	if _, err := h.TriggerBuild(context.Background(), connTo(t, srv), "deploy", nil); err != nil {
		t.Fatalf("TriggerBuild: %v", err)
	}
	if elapsed := time.Since(start); elapsed < h.settle {
		t.Fatalf("returned after %v, before the %v settle delay", elapsed, h.settle)
	}
}

func TestTriggerBuildWaitHonoursCancellation(t *testing.T) {
	srv := jenkinstest.New(t, "ci", "tok")
	srv.AddJob("deploy", plainConfig, 1)

	h := &Handlers{settle: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := h.TriggerBuild(ctx, connTo(t, srv), "deploy", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v", err)
	}
	if got := postCalls(srv); len(got) != 1 {
		t.Fatalf("build should have been submitted before waiting, posts = %q", got)
	}
}

func TestNewHandlersUsesSettleDelay(t *testing.T) {
	if h := NewHandlers(); h.settle != settleDelay {
		t.Fatalf("settle = %v", h.settle)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]string{"ENV": "prod", "BRANCH": "main", "A": ""})
	if !slices.Equal(got, []string{"A", "BRANCH", "ENV"}) {
		t.Fatalf("sortedKeys = %q", got)
	}
	if got := sortedKeys(nil); len(got) != 0 {
		t.Fatalf("sortedKeys(nil) = %q", got)
	}
}
