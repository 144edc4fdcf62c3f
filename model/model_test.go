package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Model = (*MockModel)(nil)

func TestMockModel(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddResponse("hello", "world")

	resp, err := m.Generate(context.Background(), UserRequest("be brief", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)

	resp, err = m.Generate(context.Background(), UserRequest("", "other"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)

	_, err = m.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	m.Err = errors.New("down")
	_, err = m.Generate(context.Background(), UserRequest("", "hello"))
	assert.EqualError(t, err, "down")

	assert.Len(t, m.Requests(), 4)
	assert.Equal(t, "mock", m.Info().Provider)
}
