package llm_test

import (
	"context"
	"errors"

	"github.com/mudler/LocalCircle/pkg/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
)

var _ = Describe("OpenAIGenerator", func() {
	It("sends the system prompt first and asks for a JSON object", func() {
		var got openai.ChatCompletionRequest
		client := &llm.MockClient{
			CreateChatCompletionFunc: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				got = req
				return openai.ChatCompletionResponse{
					Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: `{"response":[]}`}}},
				}, nil
			},
		}

		out, err := llm.NewOpenAIGenerator(client, "test-model").Generate(context.Background(), llm.Request{
			System:      "you are Ann",
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			Temperature: 0.8,
			JSON:        true,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal(`{"response":[]}`))
		Expect(got.Model).To(Equal("test-model"))
		Expect(got.Messages).To(HaveLen(2))
		Expect(got.Messages[0].Role).To(Equal(openai.ChatMessageRoleSystem))
		Expect(got.Messages[1].Content).To(Equal("hi"))
		Expect(got.ResponseFormat).ToNot(BeNil())
		Expect(got.ResponseFormat.Type).To(Equal(openai.ChatCompletionResponseFormatTypeJSONObject))
	})

	It("fails on an empty completion", func() {
		_, err := llm.NewOpenAIGenerator(&llm.MockClient{}, "m").Generate(context.Background(), llm.Request{})
		Expect(err).To(HaveOccurred())
	})

	It("wraps client errors", func() {
		client := &llm.MockClient{
			CreateChatCompletionFunc: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return openai.ChatCompletionResponse{}, errors.New("503")
			},
		}
		_, err := llm.NewOpenAIGenerator(client, "m").Generate(context.Background(), llm.Request{})
		Expect(err).To(MatchError(ContainSubstring("503")))
	})
})

var _ = Describe("MockGenerator", func() {
	It("records requests", func() {
		m := &llm.MockGenerator{Reply: "ok"}
		out, err := m.Generate(context.Background(), llm.Request{System: "s"})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal("ok"))
		Expect(m.Calls()).To(Equal(1))
		Expect(m.Requests()[0].System).To(Equal("s"))
	})
})
