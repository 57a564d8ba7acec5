package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	mailerrors "github.com/customeros/mailclean/internal/errors"
)

func policy(n int) Policy {
	return Policy{MaxRetries: n, Min: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := policy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.Wrap(mailerrors.ErrProviderUnavailable, "429")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := policy(2).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.Wrap(mailerrors.ErrProviderUnavailable, "503")
	})
	assert.ErrorIs(t, err, mailerrors.ErrProviderUnavailable)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentNotRetried(t *testing.T) {
	calls := 0
	err := policy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.Wrap(mailerrors.ErrProviderRejected, "400")
	})
	assert.ErrorIs(t, err, mailerrors.ErrProviderRejected)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 10, Min: time.Hour, Max: time.Hour}
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return mailerrors.ErrProviderUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
