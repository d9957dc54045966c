package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type mockConverseAPI struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
	err error
}

func (m *mockConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.in = params
	if m.err != nil {
		return nil, m.err
	}
	return m.out, nil
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(120),
			OutputTokens: aws.Int32(30),
			TotalTokens:  aws.Int32(150),
		},
	}
}

func TestBedrockComplete(t *testing.T) {
	api := &mockConverseAPI{out: converseTextOutput(`  {"first_name":"Emma"}  `)}
	client := NewBedrockClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:       "anthropic.claude-3-haiku",
		System:      []string{"You analyze transcripts."},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "transcript here"}},
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != `{"first_name":"Emma"}` {
		t.Fatalf("text: %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 150 {
		t.Fatalf("usage: %+v", resp.Usage)
	}
	if len(api.in.System) != 1 || len(api.in.Messages) != 1 {
		t.Fatalf("request shape: system=%d messages=%d", len(api.in.System), len(api.in.Messages))
	}
}

func TestBedrockCompleteRequiresModel(t *testing.T) {
	client := NewBedrockClient(&mockConverseAPI{})
	if _, err := client.Complete(context.Background(), LLMRequest{}); err == nil {
		t.Fatal("expected error for missing model id")
	}
}

func TestBedrockCompleteUpstreamError(t *testing.T) {
	api := &mockConverseAPI{err: errors.New("throttled")}
	client := NewBedrockClient(api)
	if _, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "x"}}}); err == nil {
		t.Fatal("expected upstream error")
	}
}

func TestFallbackClient(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	fallback := &stubClient{resp: LLMResponse{Text: "{}"}}
	client := NewFallbackClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "{}" {
		t.Fatalf("text: %q", resp.Text)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("call counts: primary=%d fallback=%d", primary.calls, fallback.calls)
	}

	both := NewFallbackClient(&stubClient{err: errors.New("a")}, &stubClient{err: errors.New("b")}, nil)
	if _, err := both.Complete(context.Background(), LLMRequest{Model: "m"}); err == nil || err.Error() != "b" {
		t.Fatalf("expected last error, got %v", err)
	}
}
