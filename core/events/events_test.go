package events_test

import (
	"context"
	"time"

	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type eventRecorder struct {
	types.NopNotifier
	events []types.Event
}

func (r *eventRecorder) EventAppended(e types.Event) {
	r.events = append(r.events, e)
}

var _ = Describe("Event log", func() {
	var (
		ctx   context.Context
		repo  *store.Repository
		log   *events.Log
		now   time.Time
		notes *eventRecorder
		alice *types.Agent
		bob   *types.Agent
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = store.NewRepository(store.NewMemory())
		now = time.UnixMilli(1_700_000_000_000)
		notes = &eventRecorder{}

		var err error
		log, err = events.New(repo,
			events.WithClock(func() time.Time { return now }),
			events.WithNotifier(notes),
			events.WithScan(50, 2, 10),
		)
		Expect(err).ToNot(HaveOccurred())

		alice = &types.Agent{ID: "a1", Name: "Alice", GroupID: "g1"}
		bob = &types.Agent{ID: "b1", Name: "Bob", GroupID: "g1"}
		Expect(repo.SaveAgent(ctx, alice)).To(Succeed())
		Expect(repo.SaveAgent(ctx, bob)).To(Succeed())
		Expect(repo.SaveSettings(ctx, types.Settings{UserName: "Sam"})).To(Succeed())
	})

	It("appends events with an empty delivery set", func() {
		evt, err := log.Append(ctx, "g1", "offline", "Bob adopted a cat")
		Expect(err).ToNot(HaveOccurred())
		Expect(evt.ProcessedBy).To(BeEmpty())
		Expect(evt.Timestamp).To(Equal(now.UnixMilli()))
		Expect(notes.events).To(HaveLen(1))

		_, err = log.Append(ctx, "", "offline", "nowhere")
		Expect(err).To(HaveOccurred())
	})

	It("briefs all pending events at once and never re-delivers them", func() {
		_, err := log.Append(ctx, "g1", "offline", "Bob adopted a cat")
		Expect(err).ToNot(HaveOccurred())
		_, err = log.Append(ctx, "g1", "offline", "Carol moved away")
		Expect(err).ToNot(HaveOccurred())
		_, err = log.Append(ctx, "g2", "offline", "someone else's news")
		Expect(err).ToNot(HaveOccurred())

		b, err := log.Enter(ctx, alice)
		Expect(err).ToNot(HaveOccurred())
		Expect(b.Kind).To(Equal(events.EventBriefing))
		Expect(b.Events).To(HaveLen(2))
		Expect(b.Message.Hidden).To(BeTrue())
		Expect(b.Message.Content).To(ContainSubstring("Bob adopted a cat"))
		Expect(b.Message.Content).To(ContainSubstring("Carol moved away"))
		Expect(alice.History).To(HaveLen(1))

		now = now.Add(time.Minute)
		_, err = log.Append(ctx, "g1", "offline", "Bob got a job")
		Expect(err).ToNot(HaveOccurred())

		b, err = log.Enter(ctx, alice)
		Expect(err).ToNot(HaveOccurred())
		Expect(b.Events).To(HaveLen(1))
		Expect(b.Message.Content).To(ContainSubstring("Bob got a job"))
		Expect(b.Message.Content).ToNot(ContainSubstring("cat"))

		pending, err := log.Pending(ctx, bob)
		Expect(err).ToNot(HaveOccurred())
		Expect(pending).To(HaveLen(3))

		stored, err := repo.Agent(ctx, "a1")
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.History).To(HaveLen(2))
		Expect(stored.LastIntelUpdate).To(Equal(now.UnixMilli()))
	})

	Context("intelligence gathering", func() {
		BeforeEach(func() {
			bob.History = types.Transcript{
				{Role: types.RoleUser, Content: "Have you seen Alice lately?", Timestamp: 1},
				{Role: types.RoleAgent, Content: "Alice was at the lake with her new friend", Timestamp: 2},
				{Role: types.RoleAgent, Content: "Alice again", Timestamp: 3},
				{Role: types.RoleSystem, Content: "Alice hidden", Hidden: true, Timestamp: 4},
			}
			Expect(repo.SaveAgent(ctx, bob)).To(Succeed())
		})

		It("ignores peers at or below the affinity threshold", func() {
			Expect(repo.SaveRelationship(ctx, &types.Relationship{Key: "a1|b1", A: "a1", B: "b1", Score: 40})).To(Succeed())
			b, err := log.Enter(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(b).To(BeNil())
			Expect(alice.LastIntelUpdate).To(Equal(now.UnixMilli()))
		})

		It("reports bounded mentions from liked peers", func() {
			Expect(repo.SaveRelationship(ctx, &types.Relationship{Key: "a1|b1", A: "a1", B: "b1", Score: 41})).To(Succeed())
			b, err := log.Enter(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(b.Kind).To(Equal(events.IntelBriefing))
			Expect(b.Hits).To(HaveLen(2))
			Expect(b.Hits[0]).To(Equal(events.Hit{Peer: "Bob", Speaker: "Sam", Snippet: "... you seen Alice lately?"}))
			Expect(b.Hits[1].Speaker).To(Equal("Bob"))
			Expect(b.Message.Hidden).To(BeTrue())
		})

		It("respects the cooldown", func() {
			Expect(repo.SaveRelationship(ctx, &types.Relationship{Key: "a1|b1", A: "a1", B: "b1", Score: 100})).To(Succeed())
			b, err := log.Enter(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(b).ToNot(BeNil())

			now = now.Add(4 * time.Minute)
			b, err = log.Enter(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(b).To(BeNil())

			now = now.Add(2 * time.Minute)
			b, err = log.Enter(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(b).ToNot(BeNil())
		})
	})
})
