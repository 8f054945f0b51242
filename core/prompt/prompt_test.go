package prompt_test

import (
	"time"

	"github.com/mudler/LocalCircle/core/prompt"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Prompt rendering", func() {
	agent := &types.Agent{ID: "a1", Name: "Alice", Persona: "A cheerful baker.", Status: types.DefaultStatus()}

	It("renders the private chat prompt with memories and commands", func() {
		out, err := prompt.RenderChat(prompt.Chat{
			Agent:    agent,
			UserName: "Sam",
			Commands: types.CommandDefinitions{{Name: "text", Description: "Send a message"}},
			Memories: []*types.Memory{{Description: "Sam likes rain", Important: true}},
			Relations: []prompt.Relation{
				{A: "Alice", B: "Sam", Type: types.RelationFriend, Score: 120},
			},
			Stickers: []*types.Sticker{{Name: "wave"}, {Name: "cry"}},
			Now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("You are Alice, chatting privately with Sam"))
		Expect(out).To(ContainSubstring("[important] Sam likes rain"))
		Expect(out).To(ContainSubstring("Alice and Sam: friend, affinity 120"))
		Expect(out).To(ContainSubstring(`"enum":["text"]`))
		Expect(out).To(ContainSubstring("wave, cry"))
		Expect(out).ToNot(ContainSubstring("has not written to you"))
	})

	It("marks autonomous wakes", func() {
		out, err := prompt.RenderChat(prompt.Chat{Agent: agent, Autonomous: true, Now: time.Now()})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("the user"))
		Expect(out).To(ContainSubstring("has not written to you"))
	})

	It("renders group and catch-up prompts", func() {
		out, err := prompt.RenderGroup(prompt.Group{
			Group:   &types.Group{ID: "g1", Name: "Bakers"},
			Actor:   agent,
			Members: []prompt.Member{{Name: "Bob", Persona: "Grumpy"}},
			Now:     time.Now(),
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring(`group chat "Bakers"`))
		Expect(out).To(ContainSubstring("- Bob: Grumpy"))
		Expect(out).To(ContainSubstring("Only speak as Alice."))

		out, err = prompt.RenderCatchUp(prompt.CatchUp{GroupName: "Bakers", Hours: 2.3, MaxEvents: 3})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("2.3 hours passed"))
		Expect(out).To(ContainSubstring("No relationships yet."))
		Expect(out).To(ContainSubstring("relationship_updates"))
	})

	It("renders the reconciliation prompt", func() {
		out, err := prompt.RenderReconcile(prompt.Reconcile{Agent: agent, Reason: "rude joke"})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("The user blocked you a while ago (rude joke)"))
	})
})

var _ = Describe("Transcript conversion", func() {
	history := types.Transcript{
		{Role: types.RoleUser, Content: "hi", Timestamp: 1},
		{Role: types.RoleAgent, Sender: "a1", SenderName: "Alice", Content: "hello", Timestamp: 2},
		{Role: types.RoleSystem, Content: "[briefing]", Hidden: true, Timestamp: 3},
		{Role: types.RoleAgent, Sender: "b1", SenderName: "Bob", Type: types.MessageSticker, Content: "wave", Timestamp: 4},
	}

	It("keeps hidden messages and maps roles", func() {
		msgs := prompt.Messages(history, 0, "a1", false)
		Expect(msgs).To(HaveLen(4))
		Expect(msgs[0]).To(Equal(llm.Message{Role: llm.RoleUser, Content: "(1) hi"}))
		Expect(msgs[1].Role).To(Equal(llm.RoleAssistant))
		Expect(msgs[2]).To(Equal(llm.Message{Role: llm.RoleSystem, Content: "(3) [briefing]"}))
		Expect(msgs[3]).To(Equal(llm.Message{Role: llm.RoleUser, Content: "(4) [sticker: wave]"}))
	})

	It("prefixes speakers in groups and bounds the window", func() {
		msgs := prompt.Messages(history, 2, "a1", true)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Content).To(Equal("(3) [briefing]"))
		Expect(msgs[1].Content).To(Equal("Bob: (4) [sticker: wave]"))
	})
})
