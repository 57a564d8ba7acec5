package executor

import "context"

// call runs fn under the retry policy, holding one provider slot per attempt.
func (s *executorService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer s.sem.Release(1)
		return fn(ctx)
	})
}
