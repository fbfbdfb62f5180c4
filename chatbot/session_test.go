package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	s := NewSession("")
	assert.Nil(t, s.ID())

	s.SetID("s1")
	s.SetID("")
	require.NotNil(t, s.ID())
	assert.Equal(t, "s1", *s.ID())

	s.AddActivity("one")
	s.AddActivity("two", "three")
	lines := s.Activities()
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	lines[0] = "changed"
	assert.Equal(t, "one", s.Activities()[0])
}
