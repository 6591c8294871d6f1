package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroundingRoundTrip(t *testing.T) {
	msg := Message{}
	require.NoError(t, msg.SetGrounding(&GroundingSummary{
		SearchPerformed: true,
		QueriesUsed:     []string{"xe buýt 86", "metro bến thành"},
	}))

	loaded := Message{GroundingJSON: msg.GroundingJSON}
	loaded.DecodeGrounding()

	require.NotNil(t, loaded.Grounding)
	assert.True(t, loaded.Grounding.SearchPerformed)
	assert.Equal(t, []string{"xe buýt 86", "metro bến thành"}, loaded.Grounding.QueriesUsed)
	assert.Empty(t, loaded.GroundingError)
}

func TestGroundingAbsent(t *testing.T) {
	msg := Message{}
	msg.DecodeGrounding()
	assert.Nil(t, msg.Grounding)
	assert.Empty(t, msg.GroundingError)
}

func TestGroundingNilClears(t *testing.T) {
	msg := Message{GroundingJSON: `{"search_performed":true}`}
	require.NoError(t, msg.SetGrounding(nil))
	assert.Empty(t, msg.GroundingJSON)
	assert.Nil(t, msg.Grounding)
}

func TestGroundingMalformedMarks(t *testing.T) {
	msg := Message{GroundingJSON: "{not json"}
	msg.DecodeGrounding()
	assert.Nil(t, msg.Grounding)
	assert.Equal(t, "malformed grounding metadata", msg.GroundingError)
}
