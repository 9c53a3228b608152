package models

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJSONStringArray tests JSONStringArray scanning.
func TestJSONStringArray(t *testing.T) {
	tests := []struct {
		input    interface{}
		name     string
		expected JSONStringArray
		wantErr  bool
	}{
		{name: "nil input", input: nil, expected: nil},
		{name: "empty string", input: "", expected: nil},
		{name: "json array string", input: `["item1", "item2"]`, expected: JSONStringArray{"item1", "item2"}},
		{name: "json array bytes", input: []byte(`["a", "b", "c"]`), expected: JSONStringArray{"a", "b", "c"}},
		{name: "unsupported type", input: 42, wantErr: true},
		{name: "invalid json", input: `{"a":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var arr JSONStringArray
			err := arr.Scan(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, arr)
			}
		})
	}
}

func TestJSONStringArray_Value(t *testing.T) {
	v, err := JSONStringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = JSONStringArray{"x", "y"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["x","y"]`, v)
}

func TestJSONStringArray_Equal(t *testing.T) {
	assert.True(t, JSONStringArray{"a", "b"}.Equal(JSONStringArray{"a", "b"}))
	assert.True(t, JSONStringArray(nil).Equal(JSONStringArray{}))
	assert.False(t, JSONStringArray{"a", "b"}.Equal(JSONStringArray{"b", "a"}))
	assert.False(t, JSONStringArray{"a"}.Equal(JSONStringArray{"a", "b"}))
}

func ptr[T any](v T) *T { return &v }

func TestPromptInput_WantsVersion(t *testing.T) {
	assert.True(t, (&PromptInput{}).WantsVersion())
	assert.True(t, (&PromptInput{CreateVersion: ptr(true)}).WantsVersion())
	assert.False(t, (&PromptInput{CreateVersion: ptr(false)}).WantsVersion())
}

func TestPromptInput_Validate(t *testing.T) {
	assert.NoError(t, (&PromptInput{}).Validate())
	assert.NoError(t, (&PromptInput{PromptType: ptr(PromptTypeUser)}).Validate())

	err := (&PromptInput{PromptType: ptr(PromptType("assistant"))}).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPromptInput_Apply(t *testing.T) {
	base := NewPromptContent()
	base.FinalPrompt = "old"
	base.Description = "keep me"

	in := &PromptInput{
		FinalPrompt: ptr("new"),
		Tags:        ptr([]string{"go", "ai"}),
	}
	got := in.Apply(base)

	assert.Equal(t, "new", got.FinalPrompt)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, JSONStringArray{"go", "ai"}, got.Tags)
	assert.Equal(t, DefaultTitle, got.Title)
	assert.Equal(t, "old", base.FinalPrompt, "input content must not be mutated")
}

func TestPromptInput_Apply_UserOnlyFields(t *testing.T) {
	in := &PromptInput{
		SystemPrompt:        ptr("sys"),
		ConversationHistory: ptr("history"),
	}

	// Dropped for system prompts.
	got := in.Apply(NewPromptContent())
	assert.Empty(t, got.SystemPrompt)
	assert.Empty(t, got.ConversationHistory)

	in.PromptType = ptr(PromptTypeUser)
	got = in.Apply(NewPromptContent())
	assert.Equal(t, "sys", got.SystemPrompt)
	assert.Equal(t, "history", got.ConversationHistory)
}

func TestPromptInput_UnmarshalJSON_NullClears(t *testing.T) {
	var in PromptInput
	err := json.Unmarshal([]byte(`{"final_prompt": null, "tags": null, "title": "kept", "is_public": null}`), &in)
	require.NoError(t, err)

	require.NotNil(t, in.FinalPrompt)
	assert.Equal(t, "", *in.FinalPrompt)
	require.NotNil(t, in.Tags)
	assert.Empty(t, *in.Tags)
	require.NotNil(t, in.Title)
	assert.Equal(t, "kept", *in.Title)
	assert.Nil(t, in.Description, "absent fields stay absent")
	assert.Nil(t, in.IsPublic, "null flags are treated as absent")

	base := NewPromptContent()
	base.FinalPrompt = "old"
	base.Description = "keep me"
	base.Tags = JSONStringArray{"go"}
	got := in.Apply(base)
	assert.Empty(t, got.FinalPrompt)
	assert.Empty(t, got.Tags)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, "kept", got.Title)
}

func TestPromptInput_UnmarshalJSON_Invalid(t *testing.T) {
	var in PromptInput
	assert.Error(t, json.Unmarshal([]byte(`{"title": 5}`), &in))
}

func TestPromptContent_Fingerprint(t *testing.T) {
	c := PromptContent{FinalPrompt: "f", SystemPrompt: "s", InitialPrompt: "i", ConversationHistory: "h", Title: "ignored"}
	fp := c.Fingerprint()
	assert.Equal(t, "f", fp.FinalPrompt)
	assert.Equal(t, "s", fp.SystemPrompt)
	assert.Equal(t, "i", fp.InitialPrompt)
	assert.Equal(t, "h", fp.ConversationHistory)
}

func TestSentinelWrapping(t *testing.T) {
	err := InvalidOperationf("cannot delete version %s", "1.0.0")
	assert.True(t, errors.Is(err, ErrInvalidOperation))
	assert.Contains(t, err.Error(), "1.0.0")

	err = Validationf("change_summary is required")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrInvalidOperation))
}
