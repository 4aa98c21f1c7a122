package agent

import (
	"testing"

	"github.com/arvalo/arvalo/types"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{name: "plain json", in: `{"a":1}`, want: map[string]any{"a": float64(1)}},
		{name: "fenced json", in: "Here:\n```json\n{\"a\": true}\n```", want: map[string]any{"a": true}},
		{name: "bare fence", in: "```\n[1,2]\n```", want: []any{float64(1), float64(2)}},
		{name: "plain text", in: "no structure here", want: "no structure here"},
		{name: "broken fence", in: "```json\n{oops\n```", want: "```json\n{oops\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAnswer(tt.in))
		})
	}
}

func TestExtractFinalAnswer(t *testing.T) {
	msgs := []types.Message{
		types.NewUserMessage("question"),
		types.NewAssistantMessage(types.NewTextBlock("first")),
		types.NewToolResultsMessage(types.NewToolResultBlock("t", "{}", false)),
		types.NewAssistantMessage(types.NewTextBlock("thinking"), types.NewTextBlock(`{"x":2}`)),
	}
	assert.Equal(t, map[string]any{"x": float64(2)}, ExtractFinalAnswer(msgs))
	assert.Equal(t, "first", ExtractFinalAnswer(msgs[:3]))
	assert.Nil(t, ExtractFinalAnswer(msgs[:1]))
	assert.Nil(t, ExtractFinalAnswer(nil))
}

type sampleAnswer struct {
	Eligible      bool     `json:"eligible"`
	DaysRemaining int      `json:"days_remaining"`
	Conditions    []string `json:"conditions"`
}

func sampleSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("eligible", openapi3.NewBoolSchema()).
		WithProperty("days_remaining", openapi3.NewIntegerSchema()).
		WithProperty("conditions", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithRequired([]string{"eligible"})
}

func TestValidateAnswer(t *testing.T) {
	schema := sampleSchema()

	assert.NoError(t, ValidateAnswer("a", nil, "anything"))
	assert.NoError(t, ValidateAnswer("a", schema, map[string]any{"eligible": false}))

	err := ValidateAnswer("a", schema, "text")
	assert.True(t, IsMalformedAnswer(err))
	assert.Contains(t, err.Error(), "answer is not JSON")

	err = ValidateAnswer("a", schema, nil)
	assert.Contains(t, err.Error(), "no answer produced")

	err = ValidateAnswer("a", schema, map[string]any{"days_remaining": float64(3)})
	var mae *MalformedAnswerError
	require.ErrorAs(t, err, &mae)
	assert.Equal(t, "a", mae.Agent)
}

func TestDecodeAnswer(t *testing.T) {
	res := &Result{Agent: "returns", Data: map[string]any{
		"eligible":       true,
		"days_remaining": float64(12),
		"conditions":     []any{"unopened"},
	}}

	out, err := DecodeAnswer[sampleAnswer](res, sampleSchema())
	require.NoError(t, err)
	assert.Equal(t, sampleAnswer{Eligible: true, DaysRemaining: 12, Conditions: []string{"unopened"}}, out)

	_, err = DecodeAnswer[sampleAnswer](&Result{Agent: "returns", Data: "nope"}, sampleSchema())
	assert.ErrorIs(t, err, ErrMalformedAnswer)

	_, err = DecodeAnswer[sampleAnswer](nil, nil)
	assert.ErrorIs(t, err, ErrMalformedAnswer)
}
