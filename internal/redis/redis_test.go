package redis

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameshop/internal/config"
)

func configFor(t *testing.T, addr string) config.RedisConfig {
	t.Helper()
	host, port, ok := strings.Cut(addr, ":")
	require.True(t, ok)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return config.RedisConfig{
		Enabled:      true,
		Host:         host,
		Port:         p,
		PoolSize:     4,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), configFor(t, mr.Addr()))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewClientUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg := configFor(t, mr.Addr())
	mr.Close()

	_, err = NewClient(context.Background(), cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect redis")
}

func TestPingNilClient(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}
