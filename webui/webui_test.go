package webui_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/mudler/LocalCircle/core/engine"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/sse"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	"github.com/mudler/LocalCircle/webui"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
)

var _ = Describe("WebUI", func() {
	var (
		ctx   context.Context
		repo  *store.Repository
		gen   *llm.MockGenerator
		eng   *engine.Engine
		bc    *sse.Broadcaster
		app   *webui.App
		now   time.Time
		reg   *prometheus.Registry
		alice *types.Agent
	)

	do := func(method, path, body string, headers ...string) (int, map[string]any) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		resp, err := app.Test(req, -1)
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).ToNot(HaveOccurred())
		out := map[string]any{}
		if len(data) > 0 && data[0] == '{' {
			Expect(json.Unmarshal(data, &out)).To(Succeed())
		} else {
			out["raw"] = string(data)
		}
		return resp.StatusCode, out
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = store.NewRepository(store.NewMemory())
		gen = &llm.MockGenerator{}
		now = time.UnixMilli(1_700_000_000_000)
		bc = sse.NewBroadcaster(10)
		reg = prometheus.NewRegistry()

		var err error
		eng, err = engine.New(repo, gen,
			engine.WithLock(lock.New(lock.WithPollInterval(5*time.Millisecond), lock.WithTimeout(50*time.Millisecond), lock.WithMetrics(lock.NewMetrics(reg)))),
			engine.WithClock(func() time.Time { return now }),
			engine.WithNotifier(bc),
		)
		Expect(err).ToNot(HaveOccurred())
		Expect(repo.SaveSettings(ctx, types.Settings{LastOnline: now.UnixMilli()})).To(Succeed())
		alice, err = eng.CreateAgent(ctx, engine.AgentSpec{Name: "Alice", Persona: "A cheerful baker."})
		Expect(err).ToNot(HaveOccurred())

		app = webui.NewApp(
			webui.WithEngine(eng),
			webui.WithBroadcaster(bc),
			webui.WithGatherer(reg),
		)
	})

	It("creates and lists agents", func() {
		status, body := do(http.MethodPost, "/api/agent/create", `{"name": "Bob", "persona": "A fisherman."}`)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body["name"]).To(Equal("Bob"))

		status, body = do(http.MethodGet, "/api/agents", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["agentCount"]).To(BeEquivalentTo(2))
	})

	It("rejects agents without a name", func() {
		status, body := do(http.MethodPost, "/api/agent/create", `{"name": " "}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body["error"]).To(Equal("Name is required"))
	})

	It("returns 404 for unknown agents", func() {
		status, _ := do(http.MethodGet, "/api/agent/nope", "")
		Expect(status).To(Equal(http.StatusNotFound))
		status, _ = do(http.MethodPost, "/api/chat/nope", `{"message": "hi"}`)
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("chats and pushes the messages to subscribers", func() {
		client := bc.Subscribe("test")
		gen.Reply = `{"response": [{"type": "text", "content": "Hello!"}], "relationship_adjustment": {"source_char_name": "Alice", "target_char_name": "user", "score_change": 4}}`

		status, body := do(http.MethodPost, "/api/chat/"+alice.ID, `{"message": "hi"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["applied"]).To(BeEquivalentTo(1))
		Expect(body["adjustments"]).To(BeEquivalentTo(1))

		var first sse.Envelope
		Eventually(client.Chan()).Should(Receive(&first))
		Expect(first.String()).To(ContainSubstring(`"content":"hi"`))

		status, _ = do(http.MethodGet, "/api/agent/"+alice.ID+"/relationships", "")
		Expect(status).To(Equal(http.StatusOK))
		rels, err := repo.RelationshipsOf(ctx, alice.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(rels).To(HaveLen(1))
		Expect(rels[0].Score).To(Equal(4))
	})

	It("rejects empty messages", func() {
		status, _ := do(http.MethodPost, "/api/chat/"+alice.ID, `{"message": "  "}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(gen.Calls()).To(BeZero())
	})

	It("maps block state conflicts to 409", func() {
		status, body := do(http.MethodPost, "/api/agent/"+alice.ID+"/block", `{"reason": "rude"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["state"]).To(BeEquivalentTo(types.BlockedByUser))

		status, _ = do(http.MethodPost, "/api/chat/"+alice.ID, `{"message": "sorry"}`)
		Expect(status).To(Equal(http.StatusConflict))
		status, _ = do(http.MethodPost, "/api/agent/"+alice.ID+"/approve", `{"accept": true}`)
		Expect(status).To(Equal(http.StatusConflict))

		status, body = do(http.MethodPost, "/api/agent/"+alice.ID+"/unblock", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["state"]).To(BeEquivalentTo(types.BlockNone))
	})

	It("reports a busy model as unavailable", func() {
		Expect(eng.Lock().Acquire(ctx, lock.LiveChat)).To(Succeed())
		defer eng.Lock().Release(lock.LiveChat)

		status, _ := do(http.MethodPost, "/api/chat/"+alice.ID, `{"message": "hi"}`)
		Expect(status).To(Equal(http.StatusServiceUnavailable))
	})

	It("creates groups and relays group chat", func() {
		status, body := do(http.MethodPost, "/api/group/create", `{"name": "Bakers"}`)
		Expect(status).To(Equal(http.StatusCreated))
		groupID := body["id"].(string)

		_, err := eng.CreateAgent(ctx, engine.AgentSpec{Name: "Bob", GroupID: groupID})
		Expect(err).ToNot(HaveOccurred())
		gen.Reply = `{"response": [{"type": "text", "content": "Morning"}]}`

		status, body = do(http.MethodPost, "/api/group/"+groupID+"/chat", `{"message": "hello all"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["replies"]).To(HaveLen(1))

		status, body = do(http.MethodGet, "/api/group/"+groupID, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["members"]).To(HaveLen(1))
	})

	It("updates the user name while keeping the last online time", func() {
		status, body := do(http.MethodPut, "/api/settings", `{"user_name": "Sam"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["user_name"]).To(Equal("Sam"))

		settings, err := repo.Settings(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(settings.LastOnline).To(Equal(now.UnixMilli()))
	})

	It("resumes without simulating a short absence", func() {
		now = now.Add(5 * time.Minute)
		status, body := do(http.MethodPost, "/api/resume", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["ran"]).To(BeFalse())
	})

	It("lists the command catalog", func() {
		status, body := do(http.MethodGet, "/api/commands", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["raw"]).To(ContainSubstring(`"name":"red_packet"`))
	})

	It("describes the agent form", func() {
		status, body := do(http.MethodGet, "/api/meta/agent", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["raw"]).To(ContainSubstring(`"key":"group_id"`))
		Expect(body["raw"]).To(ContainSubstring(`"label":"No group"`))
	})

	It("serves metrics", func() {
		gen.Reply = `{"response": []}`
		do(http.MethodPost, "/api/chat/"+alice.ID, `{"message": "hi"}`)

		status, body := do(http.MethodGet, "/metrics", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["raw"]).To(ContainSubstring("localcircle_lock"))
	})

	Context("with API keys", func() {
		BeforeEach(func() {
			app = webui.NewApp(webui.WithEngine(eng), webui.WithApiKeys("secret"))
		})

		It("requires a bearer token", func() {
			status, _ := do(http.MethodGet, "/api/agents", "")
			Expect(status).To(Equal(http.StatusUnauthorized))

			status, _ = do(http.MethodGet, "/api/agents", "", "Authorization", "Bearer secret")
			Expect(status).To(Equal(http.StatusOK))
		})
	})
})
