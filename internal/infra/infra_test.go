package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_EmptyURLDisables(t *testing.T) {
	client, err := NewRedisClient(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "::not a url")
	assert.Error(t, err)
}

func TestNewPostgresPool_EmptyURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "", 4)
	assert.Error(t, err)
}
