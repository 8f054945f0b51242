package catchup_test

import (
	"context"
	"errors"
	"time"

	"github.com/mudler/LocalCircle/core/catchup"
	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/parser"
	"github.com/mudler/LocalCircle/core/relation"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const simulationReply = "```json\n" + `{
  "relationship_updates": [
    {"char1_name": "Bob", "char2_name": "Alice", "score_change": 15, "reason": "baked together"},
    {"char1_name": "Alice", "char2_name": "Nobody", "score_change": 5, "reason": "ghost"}
  ],
  "new_events_summary": ["Alice and Bob baked bread", "Carol went fishing", "  ", "Bob lost his keys", "one too many"],
  "personal_milestones": [{"character_name": "Carol", "milestone": "Caught her first trout"}]
}` + "\n```"

var _ = Describe("Catch-up simulator", func() {
	var (
		ctx   context.Context
		repo  *store.Repository
		gen   *llm.MockGenerator
		l     *lock.Lock
		sim   *catchup.Simulator
		now   time.Time
		start time.Time
	)

	newSimulator := func() {
		log, err := events.New(repo, events.WithClock(func() time.Time { return now }))
		Expect(err).ToNot(HaveOccurred())
		sim, err = catchup.New(repo, gen, l, relation.NewAdjuster(repo), log,
			catchup.WithClock(func() time.Time { return now }),
		)
		Expect(err).ToNot(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = store.NewRepository(store.NewMemory())
		gen = &llm.MockGenerator{Reply: simulationReply}
		l = lock.New(lock.WithPollInterval(5*time.Millisecond), lock.WithTimeout(50*time.Millisecond))
		start = time.UnixMilli(1_700_000_000_000)
		now = start

		Expect(repo.SaveGroup(ctx, &types.Group{ID: "g1", Name: "Bakers", LoreIDs: []string{"missing", "l1"}})).To(Succeed())
		Expect(repo.SaveGroup(ctx, &types.Group{ID: "g2", Name: "Loners"})).To(Succeed())
		for _, a := range []*types.Agent{
			{ID: "a1", Name: "Alice", GroupID: "g1"},
			{ID: "b1", Name: "Bob", GroupID: "g1"},
			{ID: "c1", Name: "Carol", GroupID: "g1"},
			{ID: "d1", Name: "Dan", GroupID: "g2"},
		} {
			Expect(repo.SaveAgent(ctx, a)).To(Succeed())
		}
		Expect(repo.SaveLoreDoc(ctx, &types.LoreDoc{ID: "l1", Name: "Bakery Chronicle", Content: "It began."})).To(Succeed())
		Expect(repo.SaveSettings(ctx, types.Settings{LastOnline: start.UnixMilli(), UserName: "Sam"})).To(Succeed())
		newSimulator()
	})

	It("initializes the last online time on first start", func() {
		Expect(repo.SaveSettings(ctx, types.Settings{})).To(Succeed())
		report, err := sim.Run(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Ran).To(BeFalse())
		settings, err := repo.Settings(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(settings.LastOnline).To(Equal(start.UnixMilli()))
		Expect(gen.Calls()).To(BeZero())
	})

	It("does nothing below the threshold", func() {
		now = start.Add(30 * time.Minute)
		report, err := sim.Run(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Ran).To(BeFalse())
		Expect(gen.Calls()).To(BeZero())

		settings, err := repo.Settings(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(settings.LastOnline).To(Equal(start.UnixMilli()))
		evts, err := repo.Events(ctx, "g1")
		Expect(err).ToNot(HaveOccurred())
		Expect(evts).To(BeEmpty())
	})

	It("simulates groups with at least two members", func() {
		now = start.Add(2 * time.Hour)
		report, err := sim.Run(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Ran).To(BeTrue())
		Expect(gen.Calls()).To(Equal(1))

		req := gen.Requests()[0]
		Expect(req.JSON).To(BeTrue())
		Expect(req.Temperature).To(BeNumerically("~", 0.8, 0.001))
		Expect(req.System).To(ContainSubstring("2.0 hours passed"))
		Expect(req.System).To(ContainSubstring("- Carol:"))

		Expect(report.Groups).To(HaveLen(1))
		gr := report.Groups[0]
		Expect(gr.Err).ToNot(HaveOccurred())
		Expect(gr.Events).To(Equal([]string{"Alice and Bob baked bread", "Carol went fishing", "Bob lost his keys"}))
		Expect(gr.Changes).To(HaveLen(1))

		evts, err := repo.Events(ctx, "g1")
		Expect(err).ToNot(HaveOccurred())
		Expect(evts).To(HaveLen(3))
		for _, e := range evts {
			Expect(e.Kind).To(Equal(catchup.EventKind))
			Expect(e.ProcessedBy).To(BeEmpty())
		}

		rel, err := repo.Relationship(ctx, "a1|b1")
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Score).To(Equal(15))

		summaries, err := repo.Summaries(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].GroupName).To(Equal("Bakers"))

		doc, err := repo.LoreDoc(ctx, "l1")
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.Content).To(HavePrefix("It began."))
		Expect(doc.Content).To(ContainSubstring("- Bob and Alice: baked together (+15)"))
		Expect(doc.Content).To(ContainSubstring("- Carol went fishing"))

		mems, err := repo.Memories(ctx, "c1")
		Expect(err).ToNot(HaveOccurred())
		Expect(mems).To(HaveLen(1))
		Expect(mems[0].Kind).To(Equal(types.MemoryMilestone))

		settings, err := repo.Settings(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(settings.LastOnline).To(Equal(now.UnixMilli()))
		Expect(settings.UserName).To(Equal("Sam"))
	})

	It("keeps at most max events relationship updates and saturates huge deltas", func() {
		gen.Reply = `{
		  "relationship_updates": [
		    {"char1_name": "Alice", "char2_name": "Bob", "score_change": 1e20, "reason": "saved his life"},
		    {"char1_name": "Alice", "char2_name": "Carol", "score_change": -1e20, "reason": "burnt the cake"},
		    {"char1_name": "Bob", "char2_name": "Carol", "score_change": 4, "reason": "fished"},
		    {"char1_name": "Carol", "char2_name": "Alice", "score_change": 9, "reason": "made up"}
		  ],
		  "new_events_summary": ["A busy day"]
		}`
		now = start.Add(2 * time.Hour)
		report, err := sim.Run(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Groups).To(HaveLen(1))
		Expect(report.Groups[0].Changes).To(HaveLen(3))

		rel, err := repo.Relationship(ctx, "a1|b1")
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Score).To(Equal(relation.MaxScore))
		rel, err = repo.Relationship(ctx, "a1|c1")
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Score).To(Equal(relation.MinScore))
		rel, err = repo.Relationship(ctx, "b1|c1")
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Score).To(Equal(4))
	})

	It("advances the last online time when the model answer is unusable", func() {
		gen.Reply = "I would rather not."
		now = start.Add(3 * time.Hour)
		report, err := sim.Run(ctx)
		Expect(err).ToNot(HaveOccurred())
		var pf *parser.ParseFailure
		Expect(errors.As(report.Groups[0].Err, &pf)).To(BeTrue())

		evts, err := repo.Events(ctx, "g1")
		Expect(err).ToNot(HaveOccurred())
		Expect(evts).To(BeEmpty())
		settings, err := repo.Settings(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(settings.LastOnline).To(Equal(now.UnixMilli()))
	})

	It("skips a group while live chat holds the model", func() {
		Expect(l.Acquire(ctx, lock.LiveChat)).To(Succeed())
		defer l.Release(lock.LiveChat)

		now = start.Add(2 * time.Hour)
		report, err := sim.Run(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(lock.Skippable(report.Groups[0].Err)).To(BeTrue())
		Expect(gen.Calls()).To(BeZero())
	})

	It("sweeps summaries past retention", func() {
		Expect(repo.SaveSummary(ctx, &types.Summary{ID: "old", Timestamp: start.Add(-8 * 24 * time.Hour).UnixMilli()})).To(Succeed())
		Expect(repo.SaveSummary(ctx, &types.Summary{ID: "new", Timestamp: start.Add(-time.Hour).UnixMilli()})).To(Succeed())
		n, err := sim.Sweep(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(1))
		summaries, err := repo.Summaries(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].ID).To(Equal("new"))
	})

	It("rejects invalid retention crons", func() {
		_, err := catchup.NewRetention(sim, "not a cron")
		Expect(err).To(HaveOccurred())
		r, err := catchup.NewRetention(sim, "0 3 * * 0")
		Expect(err).ToNot(HaveOccurred())
		r.Start(ctx)
		r.Stop()
	})
})
