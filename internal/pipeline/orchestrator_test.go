package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsforge/deployctl/internal/api"
	"github.com/opsforge/deployctl/internal/pipeline"
	"github.com/opsforge/deployctl/internal/term"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []api.Request
	handlers map[string]func(api.Request) api.Result
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: map[string]func(api.Request) api.Result{}}
}

func key(method, path string) string {
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + path
}

func (f *fakeAPI) Do(_ context.Context, req api.Request) api.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.handlers[key(req.Method, req.Path)]
	f.mu.Unlock()

	if handler == nil {
		return api.Result{Err: fmt.Errorf("unexpected request %s", key(req.Method, req.Path))}
	}
	return handler(req)
}

func (f *fakeAPI) on(method, path string, res api.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key(method, path)] = func(api.Request) api.Result { return res }
}

func (f *fakeAPI) onFunc(method, path string, fn func(api.Request) api.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key(method, path)] = fn
}

func (f *fakeAPI) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if key(req.Method, req.Path) == key(method, path) {
			n++
		}
	}
	return n
}

func ok(v any) api.Result {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return api.Result{Success: true, Data: json.RawMessage(data)}
}

func buildDetail(buildID int, status pipeline.Status) api.Result {
	return ok(map[string]any{"buildId": buildID, "status": int(status), "creator": "qa"})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx    context.Context
		client *fakeAPI
		ui     *term.Script
		orch   *pipeline.Orchestrator
	)

	newOrchestrator := func(interval time.Duration) *pipeline.Orchestrator {
		return pipeline.New(pipeline.Config{PollInterval: interval}, client, ui, discardLogger())
	}

	BeforeEach(func() {
		ctx = context.Background()
		client = newFakeAPI()
		ui = &term.Script{}
		orch = newOrchestrator(time.Hour)
	})

	AfterEach(func() {
		orch.Close()
	})

	Describe("SearchProjects", func() {
		It("returns descriptors from a bare list payload", func() {
			client.on("", "/devops/api/business-projects", ok([]map[string]any{
				{"businessProjectId": "bp-1", "businessProjectName": "Billing Portal"},
				{"id": 42, "name": "Legacy Shop"},
			}))

			projects := orch.SearchProjects(ctx, "portal")
			Expect(projects).To(HaveLen(2))
			Expect(projects[0].ID).To(Equal("bp-1"))
			Expect(projects[0].Name).To(Equal("Billing Portal"))
			Expect(projects[1].ID).To(Equal("42"))
		})

		It("unwraps a records envelope", func() {
			client.on("", "/devops/api/business-projects", ok(map[string]any{
				"records": []map[string]any{{"projectId": "p-9", "projectName": "Ops Console"}},
			}))

			projects := orch.SearchProjects(ctx, "")
			Expect(projects).To(HaveLen(1))
			Expect(projects[0].Name).To(Equal("Ops Console"))
		})

		It("swallows failures and returns an empty list", func() {
			client.on("", "/devops/api/business-projects", api.Result{Err: fmt.Errorf("boom")})

			Expect(orch.SearchProjects(ctx, "x")).To(BeEmpty())
		})
	})

	Describe("ResolveApplicationCode", func() {
		It("chains the project detail and application lookups", func() {
			client.on("", "/devops/api/business-projects/bp-1", ok(map[string]any{"projectId": "p-7"}))
			client.on("", "/devops/api/projects/p-7/applications", ok([]map[string]any{
				{"applicationCode": "billing-web"},
			}))

			code, found := orch.ResolveApplicationCode(ctx, "bp-1")
			Expect(found).To(BeTrue())
			Expect(code).To(Equal("billing-web"))
		})

		It("reports not found when the second hop has no code", func() {
			client.on("", "/devops/api/business-projects/bp-1", ok(map[string]any{"projectId": "p-7"}))
			client.on("", "/devops/api/projects/p-7/applications", ok([]map[string]any{}))

			_, found := orch.ResolveApplicationCode(ctx, "bp-1")
			Expect(found).To(BeFalse())
		})

		It("stops after a failed first hop without calling the second", func() {
			client.on("", "/devops/api/business-projects/bp-1", api.Result{Err: fmt.Errorf("boom")})

			_, found := orch.ResolveApplicationCode(ctx, "bp-1")
			Expect(found).To(BeFalse())
			Expect(client.count("", "/devops/api/projects/p-7/applications")).To(BeZero())
		})
	})

	Describe("StartPipeline", func() {
		BeforeEach(func() {
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDoing))
		})

		It("tracks the new build and primes it with one poll", func() {
			started, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(BeTrue())

			records := orch.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].BuildID).To(Equal(7))
			Expect(records[0].ApplicationName).To(Equal("billing-web"))
			Expect(records[0].Status).NotTo(BeNil())
			Expect(*records[0].Status).To(Equal(pipeline.StatusDoing))
			Expect(client.count("", "/pipeline/api/builds/7")).To(Equal(1))
		})

		It("rejects a second start for the same application before any network call", func() {
			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())
			posts := client.count(http.MethodPost, "/pipeline/api/builds")

			started, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).To(MatchError(pipeline.ErrAlreadyDeploying))
			Expect(started).To(BeFalse())
			Expect(client.count(http.MethodPost, "/pipeline/api/builds")).To(Equal(posts))
			Expect(orch.Records()).To(HaveLen(1))
		})

		It("allows a restart once the previous run is terminal", func() {
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusError))

			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())

			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 8}))
			client.on("", "/pipeline/api/builds/8", buildDetail(8, pipeline.StatusDoing))

			started, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(BeTrue())
			Expect(orch.Records()).To(HaveLen(2))
		})

		It("recovers the running build id from a conflict response", func() {
			client.on(http.MethodPost, "/pipeline/api/builds", api.Result{
				Code:    "409",
				Message: "a pipeline is already running, id: 4521",
			})
			client.on("", "/pipeline/api/builds/4521", buildDetail(4521, pipeline.StatusDoing))

			started, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(BeTrue())

			records := orch.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].BuildID).To(Equal(4521))
		})

		It("fails when the conflict message carries no build id", func() {
			client.on(http.MethodPost, "/pipeline/api/builds", api.Result{
				Code:    "409",
				Message: "a pipeline is already running",
			})

			started, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).To(HaveOccurred())
			Expect(started).To(BeFalse())
			Expect(orch.Records()).To(BeEmpty())
		})
	})

	Describe("PollOnce", func() {
		startBuild := func() {
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDoing))
			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())
		}

		It("never downgrades a terminal status", func() {
			startBuild()
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDone))
			orch.PollOnce(ctx, 7)

			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDoing))
			orch.PollOnce(ctx, 7)

			rec := orch.Records()[0]
			Expect(rec.Status).NotTo(BeNil())
			Expect(*rec.Status).To(Equal(pipeline.StatusDone))
		})

		It("notifies completion exactly once", func() {
			startBuild()
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDone))
			orch.PollOnce(ctx, 7)
			orch.PollOnce(ctx, 7)
			orch.PollOnce(ctx, 7)

			finished := 0
			for _, n := range ui.Notifications {
				if n.Message == "billing-web build 7 finished successfully" {
					finished++
				}
			}
			Expect(finished).To(Equal(1))
		})

		It("keeps the last known status when a poll fails", func() {
			startBuild()
			client.on("", "/pipeline/api/builds/7", api.Result{Err: fmt.Errorf("gateway timeout")})
			_, polled := orch.PollOnce(ctx, 7)
			Expect(polled).To(BeFalse())

			rec := orch.Records()[0]
			Expect(rec.Status).NotTo(BeNil())
			Expect(*rec.Status).To(Equal(pipeline.StatusDoing))
		})
	})

	Describe("polling loop", func() {
		It("polls until every record is terminal, then stops", func() {
			orch.Close()
			orch = newOrchestrator(5 * time.Millisecond)

			var polls int
			var pollMu sync.Mutex
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.onFunc("", "/pipeline/api/builds/7", func(api.Request) api.Result {
				pollMu.Lock()
				defer pollMu.Unlock()
				polls++
				if polls < 3 {
					return buildDetail(7, pipeline.StatusDoing)
				}
				return buildDetail(7, pipeline.StatusDone)
			})

			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() bool {
				records := orch.Records()
				return len(records) == 1 && records[0].Terminal()
			}, time.Second, time.Millisecond).Should(BeTrue())

			settled := client.count("", "/pipeline/api/builds/7")
			Consistently(func() int {
				return client.count("", "/pipeline/api/builds/7")
			}, 50*time.Millisecond, 5*time.Millisecond).Should(Equal(settled))
		})
	})

	Describe("AbortPipeline", func() {
		It("rejects an unknown build id", func() {
			aborted, err := orch.AbortPipeline(ctx, 999)
			Expect(err).To(MatchError(pipeline.ErrRecordNotFound))
			Expect(aborted).To(BeFalse())
		})

		It("requests the abort and refreshes the status immediately", func() {
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDoing))
			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())

			client.on(http.MethodPost, "/pipeline/api/builds/7/abort", ok(map[string]any{}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusAbort))

			aborted, err := orch.AbortPipeline(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(aborted).To(BeTrue())
			Expect(client.count(http.MethodPost, "/pipeline/api/builds/7/abort")).To(Equal(1))

			rec := orch.Records()[0]
			Expect(rec.Loading).To(BeFalse())
			Expect(rec.Status).NotTo(BeNil())
			Expect(*rec.Status).To(Equal(pipeline.StatusAbort))
		})

		It("keeps the record intact when the abort request fails", func() {
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDoing))
			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())

			client.on(http.MethodPost, "/pipeline/api/builds/7/abort", api.Result{Err: fmt.Errorf("boom")})

			aborted, err := orch.AbortPipeline(ctx, 7)
			Expect(err).To(HaveOccurred())
			Expect(aborted).To(BeFalse())

			rec := orch.Records()[0]
			Expect(rec.Loading).To(BeFalse())
			Expect(*rec.Status).To(Equal(pipeline.StatusDoing))
		})
	})

	Describe("RemoveRecord", func() {
		It("refuses to drop a non-terminal record", func() {
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDoing))
			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())

			Expect(orch.RemoveRecord(7)).To(MatchError(pipeline.ErrRecordNotTerminal))
			Expect(orch.Records()).To(HaveLen(1))
		})

		It("drops a terminal record", func() {
			client.on(http.MethodPost, "/pipeline/api/builds", ok(map[string]any{"buildId": 7}))
			client.on("", "/pipeline/api/builds/7", buildDetail(7, pipeline.StatusDone))
			_, err := orch.StartPipeline(ctx, "billing-web")
			Expect(err).NotTo(HaveOccurred())

			Expect(orch.RemoveRecord(7)).To(Succeed())
			Expect(orch.Records()).To(BeEmpty())
		})

		It("reports an unknown build id", func() {
			Expect(orch.RemoveRecord(123)).To(MatchError(pipeline.ErrRecordNotFound))
		})
	})
})
