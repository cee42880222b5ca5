package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsforge/deployctl/internal/api"
	"github.com/opsforge/deployctl/internal/term"
)

const (
	searchProjectsPath = "/devops/api/business-projects"
	projectDetailPath  = "/devops/api/business-projects/%s"
	applicationsPath   = "/devops/api/projects/%s/applications"
	startBuildPath     = "/pipeline/api/builds"
	buildDetailPath    = "/pipeline/api/builds/%d"
	abortBuildPath     = "/pipeline/api/builds/%d/abort"

	frontendClassification = "frontend"
	conflictCode           = "409"

	defaultPollInterval = 20 * time.Second
)

// Config tunes the orchestrator.
type Config struct {
	// PollInterval is the delay between polling ticks. Zero means 20s.
	PollInterval time.Duration
}

// Orchestrator owns the deployment registry and drives remote pipelines
// from start to a terminal status. All record mutation funnels through the
// store; the polling loop is a single goroutine that runs only while at
// least one tracked record is non-terminal.
type Orchestrator struct {
	cfg   Config
	api   api.Client
	ui    term.UI
	log   *slog.Logger
	store *Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	polling bool
	closed  bool
}

// New returns an Orchestrator ready to start pipelines.
func New(cfg Config, client api.Client, ui term.UI, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:    cfg,
		api:    client,
		ui:     ui,
		log:    logger,
		store:  NewStore(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops the polling loop and waits for it to exit. The orchestrator
// accepts no further polling after Close.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// Records returns copies of all tracked deployment records.
func (o *Orchestrator) Records() []Record {
	return o.store.Snapshot()
}

// SearchProjects queries the remote project index. Failures are logged and
// swallowed; the caller always gets a (possibly empty) list.
func (o *Orchestrator) SearchProjects(ctx context.Context, keyword string) []ProjectDescriptor {
	query := url.Values{}
	if keyword != "" {
		query.Set("keyword", keyword)
	}

	res := o.api.Do(ctx, api.Request{Path: searchProjectsPath, Query: query})
	if !res.Success {
		o.log.Warn("project search failed", "keyword", keyword, "error", res.Err)
		return nil
	}

	var rawList []map[string]any
	if err := json.Unmarshal(res.Data, &rawList); err != nil {
		// Some platform versions wrap the list in {records: [...]}.
		var wrapper struct {
			Records []map[string]any `json:"records"`
		}
		if err := json.Unmarshal(res.Data, &wrapper); err != nil || wrapper.Records == nil {
			o.log.Warn("project search returned unexpected payload", "keyword", keyword)
			return nil
		}
		rawList = wrapper.Records
	}

	out := make([]ProjectDescriptor, 0, len(rawList))
	for _, raw := range rawList {
		out = append(out, normalizeProject(raw))
	}
	return out
}

// ResolveApplicationCode resolves a business project to its front-end
// application code via two sequential lookups. An absent result at either
// hop yields ("", false) with no partial state retained.
func (o *Orchestrator) ResolveApplicationCode(ctx context.Context, businessProjectID string) (string, bool) {
	res := o.api.Do(ctx, api.Request{Path: fmt.Sprintf(projectDetailPath, businessProjectID)})
	if !res.Success {
		o.log.Warn("project detail lookup failed", "business_project_id", businessProjectID, "error", res.Err)
		return "", false
	}

	var raw map[string]any
	if err := json.Unmarshal(res.Data, &raw); err != nil {
		return "", false
	}
	projectID := firstString(raw, "projectId", "id")
	if projectID == "" {
		return "", false
	}

	query := url.Values{"classification": {frontendClassification}}
	res = o.api.Do(ctx, api.Request{Path: fmt.Sprintf(applicationsPath, projectID), Query: query})
	if !res.Success {
		o.log.Warn("application lookup failed", "project_id", projectID, "error", res.Err)
		return "", false
	}

	code := applicationCode(res.Data)
	if code == "" {
		return "", false
	}
	return code, true
}

// applicationCode digs the application code out of a payload that is either
// a single object or a list of classification entries.
func applicationCode(data json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		return firstString(obj, "applicationCode", "appCode", "code")
	}

	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		for _, entry := range list {
			if code := firstString(entry, "applicationCode", "appCode", "code"); code != "" {
				return code
			}
		}
	}
	return ""
}

// StartPipeline starts a remote pipeline for the application. A second
// start while a run for the same application is non-terminal is rejected
// before any network call. A conflict response carrying an existing build
// id is recovered by tracking that id instead.
func (o *Orchestrator) StartPipeline(ctx context.Context, application string) (bool, error) {
	if o.store.ActiveByApplication(application) {
		o.ui.Notify(term.LevelWarn, fmt.Sprintf("%s already has a pipeline in flight", application))
		return false, ErrAlreadyDeploying
	}

	res := o.api.Do(ctx, api.Request{
		Path:   startBuildPath,
		Method: http.MethodPost,
		Body:   map[string]string{"applicationCode": application},
	})

	if res.Success {
		buildID, ok := decodeBuildID(res.Data)
		if !ok {
			err := fmt.Errorf("pipeline start response carried no build id")
			o.ui.Notify(term.LevelError, fmt.Sprintf("failed to start pipeline for %s: %v", application, err))
			return false, err
		}
		o.track(ctx, buildID, application)
		o.ui.Notify(term.LevelInfo, fmt.Sprintf("pipeline %d started for %s", buildID, application))
		return true, nil
	}

	if res.Code == conflictCode {
		if buildID, ok := ParseBuildID(res.Message); ok {
			o.log.Info("recovered running pipeline from conflict response",
				"application", application, "build_id", buildID)
			o.track(ctx, buildID, application)
			return true, nil
		}
	}

	err := res.Err
	if err == nil {
		err = fmt.Errorf("start pipeline: %s", res.Message)
	}
	o.ui.Notify(term.LevelError, fmt.Sprintf("failed to start pipeline for %s: %v", application, err))
	return false, err
}

// track inserts a record, primes it with one immediate poll, and makes sure
// the polling loop is running.
func (o *Orchestrator) track(ctx context.Context, buildID int, application string) {
	o.store.Insert(Record{BuildID: buildID, ApplicationName: application})
	o.PollOnce(ctx, buildID)
	o.ensurePolling()
}

// PollOnce fetches the detail for one build and merges it into the matching
// record. The completion notification fires exactly once, on the transition
// into a terminal status. A failed poll keeps the last known status; the
// next tick retries.
func (o *Orchestrator) PollOnce(ctx context.Context, buildID int) (Status, bool) {
	res := o.api.Do(ctx, api.Request{Path: fmt.Sprintf(buildDetailPath, buildID)})
	if !res.Success {
		o.log.Debug("poll failed, keeping last known status", "build_id", buildID, "error", res.Err)
		return 0, false
	}

	var d detail
	if err := json.Unmarshal(res.Data, &d); err != nil {
		o.log.Warn("poll returned undecodable payload", "build_id", buildID, "error", err)
		return 0, false
	}

	rec, completed, ok := o.store.Apply(buildID, d)
	if !ok {
		return 0, false
	}
	if completed {
		o.notifyCompletion(rec)
	}
	if rec.Status == nil {
		return 0, false
	}
	return *rec.Status, true
}

func (o *Orchestrator) notifyCompletion(rec Record) {
	if rec.Status != nil && *rec.Status == StatusDone {
		o.ui.Notify(term.LevelInfo, fmt.Sprintf("%s build %d finished successfully", rec.ApplicationName, rec.BuildID))
		return
	}
	status := "unknown"
	if rec.Status != nil {
		status = rec.Status.String()
	}
	o.ui.Notify(term.LevelWarn, fmt.Sprintf("%s build %d ended with status %s", rec.ApplicationName, rec.BuildID, status))
}

// AbortPipeline requests a remote abort for a tracked build. On success one
// extra poll fetches the post-abort status immediately; on failure the
// record keeps its current status.
func (o *Orchestrator) AbortPipeline(ctx context.Context, buildID int) (bool, error) {
	if _, ok := o.store.Get(buildID); !ok {
		o.ui.Notify(term.LevelWarn, fmt.Sprintf("no tracked deployment with build id %d", buildID))
		return false, ErrRecordNotFound
	}

	o.store.SetLoading(buildID, true)
	res := o.api.Do(ctx, api.Request{Path: fmt.Sprintf(abortBuildPath, buildID), Method: http.MethodPost})
	o.store.SetLoading(buildID, false)

	if !res.Success {
		err := res.Err
		if err == nil {
			err = fmt.Errorf("abort pipeline: %s", res.Message)
		}
		o.ui.Notify(term.LevelError, fmt.Sprintf("failed to abort build %d: %v", buildID, err))
		return false, err
	}

	o.PollOnce(ctx, buildID)
	return true, nil
}

// RemoveRecord drops a terminal record from the registry. Purely a local
// mutation.
func (o *Orchestrator) RemoveRecord(buildID int) error {
	return o.store.Remove(buildID)
}

func (o *Orchestrator) interval() time.Duration {
	if o.cfg.PollInterval > 0 {
		return o.cfg.PollInterval
	}
	return defaultPollInterval
}

// ensurePolling starts the polling loop unless it is already running.
func (o *Orchestrator) ensurePolling() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.polling {
		return
	}
	o.polling = true
	o.wg.Add(1)
	go o.loop()
}

// loop re-arms itself after each tick only while some record is still
// non-terminal; otherwise it goes idle until the next StartPipeline.
func (o *Orchestrator) loop() {
	defer o.wg.Done()
	interval := o.interval()

	for {
		select {
		case <-o.ctx.Done():
			o.mu.Lock()
			o.polling = false
			o.mu.Unlock()
			return
		case <-time.After(interval):
		}

		o.tick(o.ctx)

		o.mu.Lock()
		if len(o.store.NonTerminal()) == 0 {
			o.polling = false
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()
	}
}

// tick polls every non-terminal record concurrently and joins before the
// loop decides whether to re-arm.
func (o *Orchestrator) tick(ctx context.Context) {
	ids := o.store.NonTerminal()
	if len(ids) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			o.PollOnce(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// decodeBuildID accepts both a bare numeric payload and an object carrying
// the id under buildId/id.
func decodeBuildID(data json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(data, &n); err == nil && n > 0 {
		return n, true
	}

	var obj struct {
		BuildID int `json:"buildId"`
		ID      int `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.BuildID > 0 {
			return obj.BuildID, true
		}
		if obj.ID > 0 {
			return obj.ID, true
		}
	}
	return 0, false
}
