package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgoodtape/videoproc/internal/domain"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []AttemptEvent
}

func (o *recordingObserver) ObserveAttempt(ctx context.Context, ev AttemptEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func candidates(ids ...string) []PathAttempt {
	out := make([]PathAttempt, len(ids))
	for i, id := range ids {
		out[i] = PathAttempt{EndpointID: id, Kind: KindResidential, Provider: ProviderDecodo, ProxyURL: "http://u:p@" + id}
	}
	return out
}

func TestRun_FirstSuccessWins(t *testing.T) {
	tracker := NewTracker()
	obs := &recordingObserver{}
	r := NewRunner(tracker, testLogger(), WithObservers(obs)).With("extract", "https://youtu.be/x")

	var tried []string
	got, used, err := Run(context.Background(), r, candidates("a:1", "b:2", "c:3"), time.Second,
		func(ctx context.Context, a PathAttempt) (string, error) {
			tried = append(tried, a.EndpointID)
			if a.EndpointID == "b:2" {
				return "metadata", nil
			}
			return "", errors.New("ERROR: Sign in to confirm you're not a bot")
		})

	require.NoError(t, err)
	assert.Equal(t, "metadata", got)
	assert.Equal(t, "b:2", used.EndpointID)
	assert.Equal(t, []string{"a:1", "b:2"}, tried)

	assert.Equal(t, int64(1), tracker.Stats("a:1").FailureCount)
	assert.Equal(t, int64(1), tracker.Stats("b:2").SuccessCount)
	assert.Zero(t, tracker.Stats("c:3").Total)

	require.Len(t, obs.events, 2)
	assert.Equal(t, ClassBlocking, obs.events[0].Class)
	assert.True(t, obs.events[1].Success)
	assert.Equal(t, "extract", obs.events[1].Operation)
	assert.Equal(t, "https://youtu.be/x", obs.events[1].URL)
}

func TestRun_Exhausted(t *testing.T) {
	tracker := NewTracker()
	authHits := 0
	r := NewRunner(tracker, testLogger(), WithAuthFailureHook(func() { authHits++ })).With("transcode", "")

	errs := map[string]error{
		"a:1": fmt.Errorf("download: %w", domain.ErrProxyAuth),
		"b:2": errors.New("HTTP Error 429: Too Many Requests"),
		"c:3": errors.New("exit status 1"),
	}
	_, _, err := Run(context.Background(), r, candidates("a:1", "b:2", "c:3"), time.Second,
		func(ctx context.Context, a PathAttempt) (int, error) {
			return 0, errs[a.EndpointID]
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllPathsFailed)
	assert.ErrorIs(t, err, domain.ErrProxyAuth)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, ex.AttemptIDs())
	assert.Equal(t, []Class{ClassAuth, ClassBlocking, ClassOther}, ex.Classes())
	assert.Nil(t, ex.Cause)
	assert.Contains(t, err.Error(), "all 3 network paths failed")

	assert.Equal(t, 1, authHits)
	for _, id := range []string{"a:1", "b:2", "c:3"} {
		assert.Equal(t, int64(1), tracker.Stats(id).FailureCount, id)
	}
}

func TestRun_AttemptTimeout(t *testing.T) {
	tracker := NewTracker()
	r := NewRunner(tracker, testLogger())

	got, used, err := Run(context.Background(), r, candidates("slow:1", "fast:2"), 20*time.Millisecond,
		func(ctx context.Context, a PathAttempt) (string, error) {
			if a.EndpointID == "slow:1" {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "fast:2", used.EndpointID)
	assert.Equal(t, int64(1), tracker.Stats("slow:1").FailureCount)
}

func TestRun_TimeoutClass(t *testing.T) {
	r := NewRunner(NewTracker(), testLogger())

	_, _, err := Run(context.Background(), r, candidates("slow:1"), 10*time.Millisecond,
		func(ctx context.Context, a PathAttempt) (string, error) {
			<-ctx.Done()
			return "", errors.New("yt-dlp killed")
		})

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, []Class{ClassTimeout}, ex.Classes())
	assert.ErrorIs(t, err, domain.ErrAttemptTimeout)
}

func TestRun_ParentCancellation(t *testing.T) {
	tracker := NewTracker()
	r := NewRunner(tracker, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var tried []string
	_, _, err := Run(ctx, r, candidates("a:1", "b:2", "c:3"), time.Second,
		func(ctx context.Context, a PathAttempt) (string, error) {
			tried = append(tried, a.EndpointID)
			if a.EndpointID == "b:2" {
				cancel()
				return "", ctx.Err()
			}
			return "", errors.New("boom")
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, domain.ErrAllPathsFailed)
	assert.Equal(t, []string{"a:1", "b:2"}, tried)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, []string{"a:1", "b:2"}, ex.AttemptIDs())
	assert.Equal(t, int64(1), tracker.Stats("b:2").FailureCount, "in-flight attempt is recorded")
	assert.Zero(t, tracker.Stats("c:3").Total)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, _, err := Run(ctx, NewRunner(NewTracker(), testLogger()), candidates("a:1"), time.Second,
		func(ctx context.Context, a PathAttempt) (string, error) {
			called = true
			return "", nil
		})

	assert.False(t, called)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NoCandidates(t *testing.T) {
	_, _, err := Run(context.Background(), NewRunner(NewTracker(), testLogger()), nil, time.Second,
		func(ctx context.Context, a PathAttempt) (string, error) { return "", nil })
	assert.ErrorIs(t, err, domain.ErrNoNetworkPath)
}

func TestRun_ByteCounter(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRunner(NewTracker(), testLogger(), WithObservers(obs))

	_, _, err := Run(context.Background(), r, candidates("a:1"), time.Second,
		func(ctx context.Context, a PathAttempt) (*domain.TranscodeOutput, error) {
			return &domain.TranscodeOutput{SizeBytes: 4096}, nil
		})
	require.NoError(t, err)
	require.Len(t, obs.events, 1)
	assert.Equal(t, int64(4096), obs.events[0].Bytes)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{domain.ErrProxyAuth, ClassAuth},
		{fmt.Errorf("wrap: %w", domain.ErrBlocked), ClassBlocking},
		{context.DeadlineExceeded, ClassTimeout},
		{errors.New("Received HTTP 407 from proxy"), ClassAuth},
		{errors.New("Tunnel connection failed: 407 Proxy Authentication Required"), ClassAuth},
		{errors.New("ERROR: [youtube] x: Sign in to confirm you're not a bot"), ClassBlocking},
		{errors.New("ERROR: [youtube] a4071bXyZ9q: Sign in to confirm you're not a bot"), ClassBlocking},
		{errors.New("proxy gate.decodo.com:14070 user-session-40712: HTTP Error 429: Too Many Requests"), ClassBlocking},
		{errors.New("HTTP Error 404: video 407 not found"), ClassOther},
		{errors.New("HTTP Error 429: Too Many Requests"), ClassBlocking},
		{errors.New("Read timed out."), ClassTimeout},
		{errors.New("Video unavailable"), ClassOther},
		{nil, ClassOther},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
