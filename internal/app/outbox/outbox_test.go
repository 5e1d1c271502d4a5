package outbox_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/outbox"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/message"
)

func TestEncoderTagsConversationEvents(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	enc := outbox.JSONEventEncoder{IDGenerator: func() string { return "ev-1" }}

	rec, err := enc.Encode(message.Sent{MessageID: "m1", ConversationID: "c1", SenderID: "alice", At: at})
	require.NoError(t, err)
	assert.Equal(t, "ev-1", rec.ID)
	assert.Equal(t, "message.sent", rec.Name)
	assert.Equal(t, "c1", rec.PartitionKey())

	rec, err = enc.Encode(block.Blocked{ActorID: "bob", TargetID: "alice", At: at})
	require.NoError(t, err)
	assert.Empty(t, rec.Headers)
	assert.Equal(t, rec.Aggregate, rec.PartitionKey())

	var decoded block.Blocked
	require.NoError(t, outbox.Decode(rec, &decoded))
	assert.Equal(t, "alice", decoded.TargetID)
}
