package main

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/gateway/internal/config"
)

func TestConnectRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := connectRedis(ctx, config.RedisConfig{Enabled: true, Addr: mr.Addr()}, zerolog.Nop())
		require.NotNil(t, client)
		t.Cleanup(func() { _ = client.Close() })
		assert.NoError(t, client.Ping(ctx).Err())
	})

	t.Run("unreachable starts without redis", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		var out bytes.Buffer
		client := connectRedis(ctx, config.RedisConfig{Enabled: true, Addr: addr}, zerolog.New(&out))
		assert.Nil(t, client)
		assert.Contains(t, out.String(), "redis unreachable")
		assert.Contains(t, out.String(), `"level":"warn"`)
	})

	t.Run("disabled", func(t *testing.T) {
		client := connectRedis(ctx, config.RedisConfig{Enabled: false, Addr: "127.0.0.1:1"}, zerolog.Nop())
		assert.Nil(t, client)
	})
}
