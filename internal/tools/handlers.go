package tools

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/maps"

	"github.com/simonfxr/jenkins-trigger-mcp/internal/jenkins"
)

// settleDelay is how long TriggerBuild waits after submitting so that
// Jenkins has registered the queued build before the caller looks at it.
const settleDelay = 5 * time.Second

// JobSummary describes one Jenkins job and the parameters it declares.
type JobSummary struct {
	Name       string                 `json:"name"`
	HasParam   bool                   `json:"has_param"`
	Parameters []jenkins.ParameterDef `json:"parameters"`
}

// BuildResult identifies a triggered build. BuildNumber is the number that
// Jenkins reported as next before submission, not a confirmed assignment.
type BuildResult struct {
	JobName     string `json:"job_name"`
	JobURL      string `json:"job_url"`
	BuildNumber int    `json:"build_number"`
	BuildURL    string `json:"build_url"`
}

// Handlers implements the get_jobs and trigger_build flows. The caller
// supplies an already resolved Connection on every call.
type Handlers struct {
	settle time.Duration
}

func NewHandlers() *Handlers {
	return &Handlers{settle: settleDelay}
}

// GetJobs lists every job with its parameter metadata, in Jenkins' order.
// Any failure aborts the whole listing.
func (h *Handlers) GetJobs(ctx context.Context, conn jenkins.Connection) ([]JobSummary, error) {
	client := jenkins.NewClient(conn)
	names, err := client.GetJobs(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]JobSummary, 0, len(names))
	for _, name := range names {
		params, err := jobParameters(ctx, client, name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, JobSummary{Name: name, HasParam: params.HasParam, Parameters: params.Parameters})
	}
	log.FromContext(ctx).Info("listed jenkins jobs", "count", len(jobs))
	return jobs, nil
}

// TriggerBuild starts a build of jobName. Jobs that declare parameters are
// submitted through buildWithParameters with params exactly as given, even
// when params is empty; declared defaults are left to Jenkins. Jobs without
// parameters use the plain build endpoint and params is ignored.
func (h *Handlers) TriggerBuild(ctx context.Context, conn jenkins.Connection, jobName string, params map[string]string) (*BuildResult, error) {
	logger := log.FromContext(ctx).With("job", jobName)
	client := jenkins.NewClient(conn)

	info, err := client.JobInfo(ctx, jobName)
	if err != nil {
		return nil, err
	}
	next, err := info.NextBuildNumber()
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", jobName, err)
	}

	declared, err := jobParameters(ctx, client, jobName)
	if err != nil {
		return nil, err
	}

	var ok bool
	if declared.HasParam {
		logger.Info("triggering parameterized build", "next", next, "params", sortedKeys(params))
		ok, err = client.BuildWithParams(ctx, jobName, params)
	} else {
		if len(params) > 0 {
			logger.Warn("job declares no parameters, ignoring supplied ones", "params", sortedKeys(params))
		}
		logger.Info("triggering build", "next", next)
		ok, err = client.BuildJob(ctx, jobName)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("build submitted", "status_ok", ok)

	if err := h.wait(ctx); err != nil {
		return nil, err
	}

	return &BuildResult{
		JobName:     jobName,
		JobURL:      client.JobURL(jobName),
		BuildNumber: next,
		BuildURL:    fmt.Sprintf("%s/%d", client.JobURL(jobName), next),
	}, nil
}

func (h *Handlers) wait(ctx context.Context) error {
	if h.settle <= 0 {
		return nil
	}
	timer := time.NewTimer(h.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sortedKeys(params map[string]string) []string {
	keys := maps.Keys(params)
	slices.Sort(keys)
	return keys
}

func jobParameters(ctx context.Context, client *jenkins.Client, name string) (*jenkins.Parameters, error) {
	cfg, err := client.JobConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	params, err := jenkins.ParseParameters(cfg)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}
	return params, nil
}
