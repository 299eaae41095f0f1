package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clamd "github.com/DevHatRo/clamd-sdk-go"
)

type fakeNATS struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

type fakeRedis struct {
	channel string
	message interface{}
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, f.err)
}

func sampleReport() *clamd.ScanReport {
	return &clamd.ScanReport{
		ID:           "scan-1",
		Root:         "/data",
		StartedAt:    time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		FilesScanned: 2,
		Infected:     1,
		Outcomes: []clamd.ScanOutcome{
			{Path: "/data/eicar.txt", Reply: "stream: Eicar-Test-Signature FOUND"},
		},
	}
}

func TestEncode(t *testing.T) {
	payload, err := Encode(sampleReport())
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "scan-1", got["id"])
	assert.Equal(t, false, got["clean"])
	assert.EqualValues(t, 1, got["infected"])
	assert.Len(t, got["results"], 1)

	_, err = Encode(nil)
	require.Error(t, err)
}

func TestNATSSink(t *testing.T) {
	fake := &fakeNATS{}
	sink := &NATSSink{conn: fake, subject: "clamd.reports"}

	require.NoError(t, sink.Send(context.Background(), []byte(`{"id":"x"}`)))
	require.Len(t, fake.msgs, 1)
	assert.Equal(t, "clamd.reports", fake.msgs[0].Subject)
	assert.Equal(t, "application/json", fake.msgs[0].Header.Get("Content-Type"))
	assert.Equal(t, `{"id":"x"}`, string(fake.msgs[0].Data))
	assert.Equal(t, "nats:clamd.reports", sink.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sink.Send(ctx, nil), context.Canceled)
}

func TestRedisSink(t *testing.T) {
	fake := &fakeRedis{}
	sink := &RedisSink{client: fake, channel: "clamd:reports"}

	require.NoError(t, sink.Send(context.Background(), []byte("payload")))
	assert.Equal(t, "clamd:reports", fake.channel)
	assert.Equal(t, []byte("payload"), fake.message)
	assert.Equal(t, "redis:clamd:reports", sink.Name())
}

func TestPublish(t *testing.T) {
	t.Run("all sinks receive the same payload", func(t *testing.T) {
		n := &fakeNATS{}
		r := &fakeRedis{}
		err := Publish(context.Background(), zerolog.Nop(), sampleReport(),
			&NATSSink{conn: n, subject: "s"}, &RedisSink{client: r, channel: "c"})
		require.NoError(t, err)
		require.Len(t, n.msgs, 1)
		assert.Equal(t, n.msgs[0].Data, r.message)
	})

	t.Run("failures are joined and other sinks still run", func(t *testing.T) {
		boom := errors.New("broker down")
		n := &fakeNATS{err: boom}
		r := &fakeRedis{}
		err := Publish(context.Background(), zerolog.Nop(), sampleReport(),
			&NATSSink{conn: n, subject: "s"}, &RedisSink{client: r, channel: "c"})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "nats:s")
		assert.NotNil(t, r.message)
	})
}
