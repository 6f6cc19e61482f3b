package survey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
)

func capture(sent *[]bus.OutboundMessage) bus.Sender {
	return bus.SenderFunc(func(_ context.Context, msg bus.OutboundMessage) (*bus.SentMessage, error) {
		*sent = append(*sent, msg)
		return &bus.SentMessage{ID: "card-1", RoomID: msg.RoomID}, nil
	})
}

func TestSurveySendsCard(t *testing.T) {
	u := New(Options{Question: "Lunch?", Choices: []string{"ramen", "soba"}})
	table, err := plugins.Build(plugins.NewCatalog(), "", plugins.NamedUnit{Name: Kind, Unit: u})
	require.NoError(t, err)

	h, ok := table.Lookup("/survey")
	require.True(t, ok)
	require.Len(t, table.Submitters(), 1)

	var sent []bus.OutboundMessage
	require.NoError(t, h(context.Background(), capture(&sent), "room-1", nil))
	require.Len(t, sent, 1)
	assert.Equal(t, "Lunch?", sent[0].Text)
	require.Len(t, sent[0].Attachments, 1)

	card := sent[0].Attachments[0].Content
	choices := card["body"].([]any)[1].(map[string]any)["choices"].([]any)
	assert.Len(t, choices, 2)
	action := card["actions"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"plugin": "survey"}, action["data"])
}

func TestSurveyCustomCard(t *testing.T) {
	custom := map[string]any{"type": "AdaptiveCard", "version": "1.2"}
	u := New(Options{Card: custom})
	assert.Equal(t, custom, u.card())
}

func TestHandleSubmission(t *testing.T) {
	tests := []struct {
		name string
		sub  bus.Submission
		want []string
	}{
		{
			name: "linked",
			sub: bus.Submission{Linked: true, RoomID: "room-1",
				Detail: bus.AttachmentDetail{Inputs: map[string]any{"plugin": "survey", "choice": "ramen"}}},
			want: []string{"Thanks! Recorded answer: ramen"},
		},
		{
			name: "unlinked",
			sub: bus.Submission{RoomID: "room-1",
				Detail: bus.AttachmentDetail{Inputs: map[string]any{"plugin": "survey", "choice": "soba"}}},
			want: []string{"Thanks! Answer received: soba (this survey is no longer tracked)"},
		},
		{
			name: "empty choice",
			sub: bus.Submission{Linked: true, RoomID: "room-1",
				Detail: bus.AttachmentDetail{Inputs: map[string]any{"plugin": "survey"}}},
			want: []string{"Thanks! Recorded answer: (no answer)"},
		},
		{
			name: "other plugin ignored",
			sub: bus.Submission{Linked: true, RoomID: "room-1",
				Detail: bus.AttachmentDetail{Inputs: map[string]any{"plugin": "weather"}}},
		},
		{
			name: "no inputs ignored",
			sub:  bus.Submission{RoomID: "room-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent []bus.OutboundMessage
			require.NoError(t, New(Options{}).HandleSubmission(context.Background(), capture(&sent), tt.sub))

			var texts []string
			for _, m := range sent {
				assert.Equal(t, "room-1", m.RoomID)
				texts = append(texts, m.Text)
			}
			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestHandleSubmissionWithoutRoom(t *testing.T) {
	var sent []bus.OutboundMessage
	err := New(Options{}).HandleSubmission(context.Background(), capture(&sent), bus.Submission{
		Detail: bus.AttachmentDetail{ID: "act-1", Inputs: map[string]any{"plugin": "survey"}},
	})
	assert.Error(t, err)
	assert.Empty(t, sent)
}
