package bootstrap

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/events"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func testLogger() *logging.Logger { return logging.NewWithWriter("error", io.Discard) }

func TestBuildInfraRequiresDatabaseURL(t *testing.T) {
	if _, err := BuildInfra(context.Background(), nil, testLogger()); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := BuildInfra(context.Background(), &appconfig.Config{}, testLogger()); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestInfraCloseNil(t *testing.T) {
	var infra *Infra
	infra.Close()
	(&Infra{}).Close()
}

func TestBuildRedisClient(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, testLogger(), true); client != nil {
		t.Fatalf("expected nil client without an address")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, testLogger(), true)
	require.NotNil(t, client)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	addr := mr.Addr()
	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, testLogger(), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildLockerAndDeduper(t *testing.T) {
	cfg := &appconfig.Config{SessionLockTTL: time.Second, MessageDedupeTTL: time.Minute}

	_, local := BuildLocker(nil, cfg).(*conversation.LocalLocker)
	assert.True(t, local)
	_, memory := BuildDeduper(nil, cfg).(*events.MemoryDeduper)
	assert.True(t, memory)

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, testLogger(), false)
	defer client.Close()

	_, distributed := BuildLocker(client, cfg).(*conversation.RedisLocker)
	assert.True(t, distributed)
	_, shared := BuildDeduper(client, cfg).(*events.RedisDeduper)
	assert.True(t, shared)
}
