package chatbot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUStoreAddGetList(t *testing.T) {
	s := NewLRUStore(1 << 20)

	require.NoError(t, s.Add(&Record{ExchangeID: "a", Message: "first"}))
	require.NoError(t, s.Add(&Record{ExchangeID: "b", Message: "second"}))

	r, err := s.Get("a")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "first", r.Message)

	// Get moved a to the front
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ExchangeID)
	assert.Equal(t, "b", list[1].ExchangeID)

	r, err = s.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestLRUStoreReplace(t *testing.T) {
	s := NewLRUStore(1 << 20)
	require.NoError(t, s.Add(&Record{ExchangeID: "a", Answer: "short"}))
	require.NoError(t, s.Add(&Record{ExchangeID: "a", Answer: "longer answer"}))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "longer answer", list[0].Answer)
}

func TestLRUStoreEvictsOldest(t *testing.T) {
	big := strings.Repeat("x", 400)
	s := NewLRUStore(1000)

	require.NoError(t, s.Add(&Record{ExchangeID: "a", Answer: big}))
	require.NoError(t, s.Add(&Record{ExchangeID: "b", Answer: big}))
	require.NoError(t, s.Add(&Record{ExchangeID: "c", Answer: big}))

	r, err := s.Get("a")
	require.NoError(t, err)
	assert.Nil(t, r, "oldest record not evicted")

	r, err = s.Get("c")
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestNewRecord(t *testing.T) {
	e := NewExchange(NewOutboundRequest("Hello", nil, nil, "", nil), ExchangeOptions{})
	e.HandleOpen()
	e.HandleFrame([]byte(`{"type":"text","data":"Hi"}`))
	e.HandleFrame([]byte(`{"type":"end","data":{"message_id":"m1","session_id":"s1","title":"Greeting"}}`))

	r := NewRecord(e)
	assert.Equal(t, e.ID, r.ExchangeID)
	assert.Equal(t, "Hello", r.Message)
	assert.Equal(t, "Hi", r.Answer)
	assert.Equal(t, "complete", r.Status)
	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, "Greeting", r.Title)
}
