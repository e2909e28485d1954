package archive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
)

type memUploader struct {
	key, contentType string
	data             []byte
	err              error
}

func (m *memUploader) Upload(key, contentType string, data []byte) error {
	m.key, m.contentType, m.data = key, contentType, data
	return m.err
}

func TestArchive_WritesSessionJSON(t *testing.T) {
	up := &memUploader{}
	a := New(up)
	a.now = func() time.Time { return time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC) }

	s := &session.Session{
		ID:        "01HX",
		CallID:    "CA1",
		CreatedAt: time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC),
		Items:     []order.LineItem{{Name: "Margherita Pizza", Quantity: 2, UnitPrice: 1299}},
		Turns:     []session.Turn{{Role: session.RoleUser, Text: "two margheritas"}},
	}
	require.NoError(t, a.Archive(context.Background(), s))

	assert.Equal(t, "calls/2024-05-01/01HX.json", up.key)
	assert.Equal(t, "application/json", up.contentType)

	var got record
	require.NoError(t, json.Unmarshal(up.data, &got))
	assert.Equal(t, "CA1", got.Session.CallID)
	assert.Len(t, got.Session.Items, 1)
	assert.Equal(t, "two margheritas", got.Session.Turns[0].Text)
	assert.True(t, got.ArchivedAt.Equal(a.now()))
}

func TestArchive_UploadError(t *testing.T) {
	up := &memUploader{err: errors.New("bucket missing")}
	err := New(up).Archive(context.Background(), &session.Session{ID: "x", CreatedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket missing")
}

func TestKey_FallsBackToLastActivity(t *testing.T) {
	s := &session.Session{ID: "abc", LastActivity: time.Date(2024, 1, 9, 8, 0, 0, 0, time.FixedZone("x", 3600*5))}
	assert.Equal(t, "calls/2024-01-09/abc.json", Key(s))
}

func TestNewSupabase_RequiresConfig(t *testing.T) {
	_, err := NewSupabase(Config{Bucket: "calls"})
	assert.Error(t, err)
}
