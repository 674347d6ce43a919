package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venikman/ui-morn/pkg/domain"
)

func TestParseCursor(t *testing.T) {
	cases := map[string]int64{
		"":      0,
		"  ":    0,
		"abc":   0,
		"-3":    0,
		"7":     7,
		" 12 ":  12,
		"1.5":   0,
		"99999": 99999,
	}
	for in, want := range cases {
		assert.Equal(t, want, domain.ParseCursor(in), "input %q", in)
	}
}

func TestPart_Validate(t *testing.T) {
	assert.NoError(t, domain.TextPart("hi").Validate())
	assert.NoError(t, domain.Part{File: &domain.FilePart{URL: "https://x"}}.Validate())

	assert.ErrorIs(t, domain.Part{}.Validate(), domain.ErrInvalidPart)
	assert.ErrorIs(t, domain.Part{Text: "   "}.Validate(), domain.ErrInvalidPart)
	assert.ErrorIs(t, domain.Part{Text: "a", Data: &domain.DataPart{}}.Validate(), domain.ErrInvalidPart)
}

func TestPart_UnmarshalFlattenedData(t *testing.T) {
	var p domain.Part
	err := json.Unmarshal([]byte(`{"kind":"data","mimeType":"application/json","payload":{"a":1},"metadata":{"n":2,"s":"x"}}`), &p)
	require.NoError(t, err)

	require.NotNil(t, p.Data)
	assert.Equal(t, "application/json", p.Data.MimeType)
	assert.JSONEq(t, `{"a":1}`, string(p.Data.Payload))
	assert.Equal(t, map[string]string{"n": "2", "s": "x"}, p.Metadata)
	assert.NoError(t, p.Validate())
}

func TestPart_UnmarshalRejectsNonObject(t *testing.T) {
	var p domain.Part
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &p))
}

func TestMessage_FindToolApproval(t *testing.T) {
	raw := `{"role":"user","parts":[
		{"text":"approve please"},
		{"data":{"mimeType":"application/json","payload":{"toolApproval":{"requestId":"r1","approved":true,"reason":"ok"}}}}
	]}`
	var m domain.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.NoError(t, m.Validate())

	a, ok := m.FindToolApproval()
	require.True(t, ok)
	assert.Equal(t, domain.ToolApproval{RequestID: "r1", Approved: true, Reason: "ok"}, a)
}

func TestMessage_MetadataString(t *testing.T) {
	m := domain.Message{Metadata: map[string]json.RawMessage{
		"scenario": json.RawMessage(`"tools"`),
		"count":    json.RawMessage(`3`),
	}}
	assert.Equal(t, "tools", m.MetadataString("scenario", "markdown"))
	assert.Equal(t, "x", m.MetadataString("count", "x"))
	assert.Equal(t, "markdown", m.MetadataString("missing", "markdown"))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, domain.IsTerminal(domain.KindCompleted))
	assert.True(t, domain.IsTerminal(domain.KindError))
	assert.True(t, domain.IsTerminal(domain.KindCanceled))
	assert.False(t, domain.IsTerminal(domain.KindWorking))
	assert.False(t, domain.IsTerminal(domain.KindInputRequired))
}

func TestSanitizeText(t *testing.T) {
	got, err := domain.SanitizeText("plain\ttext\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "plain\ttext\n", got)

	got, err = domain.SanitizeText("red \x1b[31malert\x07\x00", 0)
	require.NoError(t, err)
	assert.Equal(t, "red [31malert", got)

	_, err = domain.SanitizeText("abcdef", 5)
	assert.ErrorIs(t, err, domain.ErrInputTooLarge)

	_, err = domain.SanitizeText("bad \xff", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidUTF8)
}

func TestMessage_Sanitize(t *testing.T) {
	msg := domain.Message{Role: "user", Parts: []domain.Part{domain.TextPart("hi\x1b"), domain.TextPart("ok")}}
	require.NoError(t, msg.Sanitize(domain.MaxTextBytes))
	assert.Equal(t, "hi", msg.Parts[0].Text)

	msg = domain.Message{Parts: []domain.Part{domain.TextPart("ok"), domain.TextPart("toolong")}}
	err := msg.Sanitize(3)
	assert.ErrorIs(t, err, domain.ErrInputTooLarge)
	assert.Contains(t, err.Error(), "part 1")
}
