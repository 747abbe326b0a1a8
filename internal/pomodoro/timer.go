package pomodoro

import (
	"context"
	"time"

	"github.com/kalambet/notebook/internal/model"
)

func (s *Store) StartTimer() {
	s.state.Update(func(st *State) { st.Running = true })
}

func (s *Store) PauseTimer() {
	s.state.Update(func(st *State) { st.Running = false })
}

// ResetTimer stops the countdown and rewinds it to the current session's
// duration, or to the work duration when no session is in progress.
func (s *Store) ResetTimer() {
	s.state.Update(func(st *State) {
		minutes := st.Settings.WorkDuration
		if st.Current != nil && st.Current.DurationMinutes > 0 {
			minutes = st.Current.DurationMinutes
		}
		st.Running = false
		st.TimeRemaining = minutes * 60
	})
}

// SetTimeRemaining overwrites the countdown. Setting it to zero while a
// session is in progress completes that session.
func (s *Store) SetTimeRemaining(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return &model.ValidationError{Field: "seconds", Message: "must not be negative"}
	}
	st := s.state.Update(func(st *State) { st.TimeRemaining = seconds })
	return s.expire(ctx, st)
}

// Tick advances a running countdown by one second.
func (s *Store) Tick(ctx context.Context) error {
	st := s.state.Update(func(st *State) {
		if st.Running && st.TimeRemaining > 0 {
			st.TimeRemaining--
		}
	})
	return s.expire(ctx, st)
}

// expire completes the current session once the countdown is at zero. A
// running timer with no session simply stops.
func (s *Store) expire(ctx context.Context, st State) error {
	if st.TimeRemaining > 0 {
		return nil
	}
	if st.Current == nil {
		if st.Running {
			s.PauseTimer()
		}
		return nil
	}
	id := st.Current.ID
	if _, err := s.Complete(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("pomodoro session finished", "id", id)
	return nil
}

// RunTimer ticks until ctx is cancelled. Tick failures are logged and the
// loop carries on.
func (s *Store) RunTimer(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("pomodoro tick failed", "error", err)
			}
		}
	}
}
