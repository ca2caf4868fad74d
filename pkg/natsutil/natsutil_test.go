package natsutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type capture struct {
	msgs []*nats.Msg
	err  error
}

func (c *capture) PublishMsg(m *nats.Msg) error {
	c.msgs = append(c.msgs, m)
	return c.err
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	require.True(t, srv.ReadyForConnections(3*time.Second), "nats not ready")
	nc, err := Connect(srv.ClientURL(), "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	assert.Equal(t, "", c.Get("missing"))
	assert.Nil(t, c.Keys())

	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Len(t, c.Keys(), 1)
}

func TestPublishEncodesJSON(t *testing.T) {
	c := &capture{}
	require.NoError(t, Publish(context.Background(), c, "rds.test", payload{Name: "a", Value: 1}))
	require.Len(t, c.msgs, 1)
	assert.Equal(t, "rds.test", c.msgs[0].Subject)
	assert.JSONEq(t, `{"name":"a","value":1}`, string(c.msgs[0].Data))

	c.err = errors.New("closed")
	assert.ErrorIs(t, Publish(context.Background(), c, "rds.test", payload{}), c.err)

	err := Publish(context.Background(), c, "rds.test", make(chan int))
	assert.ErrorContains(t, err, "rds.test")
}

func TestDecode(t *testing.T) {
	v, ctx, err := decode[payload](&nats.Msg{Data: []byte(`{"name":"x","value":2}`)})
	require.NoError(t, err)
	assert.NotNil(t, ctx)
	assert.Equal(t, payload{Name: "x", Value: 2}, v)

	_, _, err = decode[payload](&nats.Msg{Data: []byte("{bad")})
	assert.Error(t, err)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	nc := startNATS(t)
	got := make(chan payload, 2)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	sub, err := Subscribe(nc, "rds.test", quiet, func(_ context.Context, p payload) { got <- p })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, nc.Publish("rds.test", []byte("{bad")))
	require.NoError(t, Publish(context.Background(), nc, "rds.test", payload{Name: "ok", Value: 7}))
	require.NoError(t, nc.Flush())

	select {
	case p := <-got:
		assert.Equal(t, payload{Name: "ok", Value: 7}, p)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	assert.Empty(t, got)
}

func TestConnectFails(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "test", nil)
	assert.Error(t, err)
}
