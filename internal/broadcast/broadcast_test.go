package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/codegate/internal/apperr"
)

type audience []int64

func (a audience) IDs(context.Context) ([]int64, error) { return a, nil }

type brokenAudience struct{}

func (brokenAudience) IDs(context.Context) ([]int64, error) {
	return nil, apperr.Storage("list users", errors.New("db down"))
}

type recorder struct {
	attempts []int64
	fail     map[int64]bool
}

func (r *recorder) SendText(_ context.Context, chatID int64, _ string) (int, error) {
	r.attempts = append(r.attempts, chatID)
	if r.fail[chatID] {
		return 0, errors.New("Forbidden: bot was blocked by the user")
	}
	return len(r.attempts), nil
}

func TestFailureDoesNotStopBroadcast(t *testing.T) {
	rec := &recorder{fail: map[int64]bool{20: true}}
	b := New(audience{10, 20, 30}, rec, 1000, nil, nil)

	res, err := b.Send(context.Background(), "maintenance tonight")
	require.NoError(t, err)
	assert.Equal(t, Result{Recipients: 3, Sent: 2, Failed: 1}, res)
	assert.Equal(t, []int64{10, 20, 30}, rec.attempts)
}

func TestEmptyText(t *testing.T) {
	b := New(audience{1}, &recorder{}, 0, nil, nil)
	_, err := b.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAudienceFailure(t *testing.T) {
	b := New(brokenAudience{}, &recorder{}, 0, nil, nil)
	_, err := b.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestRateIsEnforced(t *testing.T) {
	rec := &recorder{}
	b := New(audience{1, 2, 3, 4, 5}, rec, 50, nil, nil)

	start := time.Now()
	res, err := b.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Sent)
	// burst of one, then four waits of 20ms
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestCancelledBroadcast(t *testing.T) {
	rec := &recorder{}
	b := New(audience{1, 2, 3}, rec, 0.5, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := b.Send(ctx, "hi")
	assert.Error(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Len(t, rec.attempts, 1)
}
