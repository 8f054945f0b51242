package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/mudler/LocalCircle/pkg/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		server *httptest.Server
		last   *http.Request
		body   map[string]any
		c      *client.Client
	)

	serve := func(status int, reply string) {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			last = r
			body = map[string]any{}
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		c = client.NewClient(server.URL+"/", "secret", 0)
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends chat messages with the API key", func() {
		serve(http.StatusOK, `{"applied": 2, "messages": [{"role": "agent", "content": "hey"}]}`)

		r, err := c.SendMessage(ctx, "a1", "hello")
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Applied).To(Equal(2))
		Expect(r.Messages).To(HaveLen(1))
		Expect(r.Messages[0].Content).To(Equal("hey"))

		Expect(last.Method).To(Equal(http.MethodPost))
		Expect(last.URL.Path).To(Equal("/api/chat/a1"))
		Expect(last.Header.Get("Authorization")).To(Equal("Bearer secret"))
		Expect(body["message"]).To(Equal("hello"))
	})

	It("lists agents", func() {
		serve(http.StatusOK, `{"agents": [{"id": "a1", "name": "Alice", "block": {"state": "none"}}], "agentCount": 1}`)

		agents, err := c.ListAgents(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(agents).To(HaveLen(1))
		Expect(agents[0].Name).To(Equal("Alice"))
		Expect(string(agents[0].Block.State)).To(Equal("none"))
	})

	It("returns the server error message", func() {
		serve(http.StatusConflict, `{"error": "engine: conversation is blocked"}`)

		_, err := c.SendMessage(ctx, "a1", "hello")
		var apiErr *client.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Status).To(Equal(http.StatusConflict))
		Expect(apiErr.Message).To(Equal("engine: conversation is blocked"))
	})

	It("posts block transitions", func() {
		serve(http.StatusOK, `{"state": "blocked_by_user", "reason": "rude"}`)

		st, err := c.Block(ctx, "a1", "rude")
		Expect(err).ToNot(HaveOccurred())
		Expect(st.Reason).To(Equal("rude"))
		Expect(last.URL.Path).To(Equal("/api/agent/a1/block"))
		Expect(body["reason"]).To(Equal("rude"))
	})

	It("returns no reply when entering without a briefing", func() {
		serve(http.StatusOK, `{"briefing": null, "reply": null}`)

		r, err := c.Enter(ctx, "a1")
		Expect(err).ToNot(HaveOccurred())
		Expect(r).To(BeNil())
	})
})
