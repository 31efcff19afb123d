package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobasher/mobasher/internal/config"
)

var testStart = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ac := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	client := newClientWith(ac, rdb, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestStageOf(t *testing.T) {
	assert.Equal(t, "asr", StageOf(TaskASRTranscribe))
	assert.Equal(t, "vision", StageOf(TaskVisionOCR))
	assert.Equal(t, "nlp", StageOf(TaskNLPAlerts))
	assert.Equal(t, "plain", StageOf("plain"))
}

func TestDedupeKey(t *testing.T) {
	id := uuid.MustParse("f4b7f2c8-0000-0000-0000-000000000001")
	key := DedupeKey(TaskASRTranscribe, id, testStart)
	assert.Equal(t, "asr.transcribe_segment:queued:f4b7f2c8-0000-0000-0000-000000000001:2026-08-24T12:00:00Z", key)

	// Local times normalize to UTC.
	loc := time.FixedZone("AST", 3*3600)
	assert.Equal(t, key, DedupeKey(TaskASRTranscribe, id, testStart.In(loc)))

	// Sibling vision tasks guard separate keys.
	assert.NotEqual(t,
		DedupeKey(TaskVisionOCR, id, testStart),
		DedupeKey(TaskVisionObjects, id, testStart))
}

func TestSegmentPayload_RoundTrip(t *testing.T) {
	payload := SegmentPayload{
		SegmentID: uuid.New(),
		StartedAt: testStart,
		ChannelID: "kuwait1",
	}
	task, err := NewSegmentTask(TaskASRTranscribe, payload)
	require.NoError(t, err)
	assert.Equal(t, TaskASRTranscribe, task.Type())

	got, err := ParseSegmentPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload.SegmentID, got.SegmentID)
	assert.True(t, got.StartedAt.Equal(testStart))
	assert.Equal(t, "kuwait1", got.ChannelID)
}

func TestParseSegmentPayload_Invalid(t *testing.T) {
	_, err := ParseSegmentPayload(asynq.NewTask(TaskASRTranscribe, []byte("{")))
	assert.Error(t, err)

	_, err = ParseSegmentPayload(asynq.NewTask(TaskASRTranscribe, []byte(`{"channel_id":"x"}`)))
	assert.Error(t, err)

	_, err = ParseSegmentPayload(asynq.NewTask(TaskASRTranscribe,
		[]byte(`{"segment_id":"f4b7f2c8-0000-0000-0000-000000000001"}`)))
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions(config.RedisConfig{URL: "redis://localhost:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = RedisOptions(config.RedisConfig{Addr: "broker:6379", Password: "s3cret", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "broker:6379", opts.Addr)
	assert.Equal(t, "s3cret", opts.Password)
	assert.Equal(t, 1, opts.DB)

	_, err = RedisOptions(config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

func TestClient_EnqueueSegment_Dedupes(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	payload := SegmentPayload{
		SegmentID: uuid.New(),
		StartedAt: testStart,
		ChannelID: "kuwait1",
	}
	opts := EnqueueOptions{DedupeTTL: 10 * time.Minute, MaxRetry: 2}

	queued, err := client.EnqueueSegment(ctx, TaskASRTranscribe, payload, opts)
	require.NoError(t, err)
	assert.True(t, queued)

	key := DedupeKey(TaskASRTranscribe, payload.SegmentID, payload.StartedAt)
	assert.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "ttl %v", ttl)

	// The same window is suppressed while the key lives.
	queued, err = client.EnqueueSegment(ctx, TaskASRTranscribe, payload, opts)
	require.NoError(t, err)
	assert.False(t, queued)

	// Key expiry reopens the window.
	mr.FastForward(11 * time.Minute)
	queued, err = client.EnqueueSegment(ctx, TaskASRTranscribe, payload, opts)
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestClient_EnqueueSegment_VisionSiblingsIndependent(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	payload := SegmentPayload{
		SegmentID: uuid.New(),
		StartedAt: testStart,
		ChannelID: "kuwait1",
	}
	opts := EnqueueOptions{DedupeTTL: 10 * time.Minute}

	// The four vision artifacts of one segment share a queue but not
	// a dedupe window.
	for _, taskType := range []string{TaskVisionOCR, TaskVisionObjects, TaskVisionFaces, TaskVisionScreenshots} {
		queued, err := client.EnqueueSegment(ctx, taskType, payload, opts)
		require.NoError(t, err)
		assert.True(t, queued, taskType)
	}

	queued, err := client.EnqueueSegment(ctx, TaskVisionOCR, payload, opts)
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestClient_EnqueueSegment_NoDedupe(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	payload := SegmentPayload{
		SegmentID: uuid.New(),
		StartedAt: testStart,
		ChannelID: "kuwait1",
	}
	for i := 0; i < 2; i++ {
		queued, err := client.EnqueueSegment(ctx, TaskVisionOCR, payload, EnqueueOptions{MaxRetry: -1})
		require.NoError(t, err)
		assert.True(t, queued)
	}
}

func TestClient_ReleaseDedupe(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	payload := SegmentPayload{
		SegmentID: uuid.New(),
		StartedAt: testStart,
		ChannelID: "kuwait1",
	}
	opts := EnqueueOptions{DedupeTTL: 10 * time.Minute}

	_, err := client.EnqueueSegment(ctx, TaskNLPEntities, payload, opts)
	require.NoError(t, err)
	require.True(t, mr.Exists(DedupeKey(TaskNLPEntities, payload.SegmentID, payload.StartedAt)))

	require.NoError(t, client.ReleaseDedupe(ctx, TaskNLPEntities, payload))

	queued, err := client.EnqueueSegment(ctx, TaskNLPEntities, payload, opts)
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestClient_Ping(t *testing.T) {
	client, mr := setupTestClient(t)
	require.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestRetryDelay_DoublesWithJitter(t *testing.T) {
	base := 10 * time.Second
	for attempt, want := range map[int]time.Duration{
		0: 10 * time.Second,
		1: 20 * time.Second,
		3: 80 * time.Second,
	} {
		d := retryDelay(base, attempt)
		assert.GreaterOrEqual(t, d, want, "attempt %d", attempt)
		assert.LessOrEqual(t, d, want+want/5, "attempt %d", attempt)
	}

	// The doubling is capped so delays stay bounded.
	assert.LessOrEqual(t, retryDelay(base, 20), 640*time.Second+128*time.Second)
}
