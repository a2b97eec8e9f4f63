package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"scribe/internal/intent"
)

var ErrUnknownIntent = errors.New("unknown intent")

const DefaultModel = "gpt-4o-mini"

type Result struct {
	Intent string `json:"intent"`
	Text   string `json:"text"`
	Reply  string `json:"reply"`
}

const systemPrompt = `
You are the command parser of a robot arm that writes on a whiteboard.
Convert the user's utterance into a minimal JSON object.

RULES:
1. Output ONLY JSON. No markdown.
2. Never invent text the user did not ask to write.

OUTPUT FORMAT:
{
  "intent": "<string>",
  "text": "<string>",
  "reply": "<string>"
}

INTENTS:
- "write"  the user wants words written on the board; "text" holds exactly those words
- "erase"  clean the board
- "paint"  take a photo and draw it
- "reset"  move the arm back home
- "quit"   stop the robot and end the session
- "chat"   anything else; "reply" holds a short spoken answer

"reply" is one short sentence spoken back to the user for every intent.
If the user only says something to write, use "write" with the words as "text".
`

// Completer sends one system/user exchange to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type OpenAI struct {
	Client openai.Client
	Model  string
}

func NewOpenAI(client openai.Client, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{Client: client, Model: model}
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(o.Model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}
	return content, nil
}

// Decode parses a model answer into an intent. Code fences around the JSON
// are tolerated.
func Decode(raw string) (intent.Intent, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out Result
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return intent.Intent{}, fmt.Errorf("unmarshal NLU result: %w (raw: %s)", err, raw)
	}

	kind, err := intent.ParseKind(out.Intent)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("%w: %q", ErrUnknownIntent, out.Intent)
	}

	in := intent.Intent{Kind: kind, Text: strings.TrimSpace(out.Text), Reply: out.Reply}
	switch {
	case kind == intent.Write && in.Text == "":
		return intent.Intent{}, fmt.Errorf("write without text")
	case kind == intent.Chat && in.Reply == "":
		return intent.Intent{}, fmt.Errorf("chat without reply")
	}
	return in, nil
}

var keywords = map[string]intent.Kind{
	"erase": intent.Erase,
	"clean": intent.Erase,
	"paint": intent.Paint,
	"draw":  intent.Paint,
	"reset": intent.Reset,
	"home":  intent.Reset,
	"quit":  intent.Quit,
	"exit":  intent.Quit,
}

// Keywords maps a bare command word to its intent. Anything else is text to
// write.
func Keywords(text string) intent.Intent {
	text = strings.TrimSpace(text)
	word := strings.ToLower(strings.Trim(text, " .,!?"))
	if k, ok := keywords[word]; ok {
		return intent.Intent{Kind: k}
	}
	return intent.Intent{Kind: intent.Write, Text: text}
}
