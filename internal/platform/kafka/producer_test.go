package kafka

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecordsCarriesKeyAndHeaders(t *testing.T) {
	records := toRecords([]Message{{
		Topic:   "dealroom.audit",
		Key:     []byte("p-1"),
		Value:   []byte(`{"seq":1}`),
		Headers: map[string]string{"action": "proposal.submit"},
	}})

	require.Len(t, records, 1)
	assert.Equal(t, "dealroom.audit", records[0].Topic)
	assert.Equal(t, []byte("p-1"), records[0].Key)
	require.Len(t, records[0].Headers, 1)
	assert.Equal(t, "action", records[0].Headers[0].Key)
	assert.Equal(t, []byte("proposal.submit"), records[0].Headers[0].Value)
}

func TestNewProducerNeedsBrokers(t *testing.T) {
	_, err := NewProducer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
