package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.False(t, again)

	assert.True(t, mr.Exists("dedupe:whatsapp:wamid.1"))
	mr.FastForward(2 * time.Minute)

	afterTTL, err := d.FirstSeen(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, afterTTL)
}

func TestRedisDeduperBlankID(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	first, err := NewRedisDeduper(client, 0).FirstSeen(context.Background(), ProviderWhatsApp, " ")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Empty(t, mr.Keys())
}

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	ok, _ := d.FirstSeen(context.Background(), ProviderWhatsApp, "a")
	assert.True(t, ok)
	ok, _ = d.FirstSeen(context.Background(), ProviderWhatsApp, "a")
	assert.False(t, ok)
	ok, _ = d.FirstSeen(context.Background(), ProviderStripe, "a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = d.FirstSeen(context.Background(), ProviderWhatsApp, "a")
	assert.True(t, ok)
}
