// Package pomodoro owns the session history, the countdown timer and the
// timer settings.
package pomodoro

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/state"
)

const (
	// Key is the sync registry domain. It writes both persisted keys.
	Key         = "pomodoro"
	SessionsKey = "pomodoro_sessions"
	SettingsKey = "pomodoro_settings"
)

type Remote interface {
	ListSessions(ctx context.Context) ([]model.PomodoroSession, error)
	StartSession(ctx context.Context, in model.SessionInput) (model.PomodoroSession, error)
	CompleteSession(ctx context.Context, id int64) (model.PomodoroSession, error)
	CancelSession(ctx context.Context, id int64) error
	SessionStats(ctx context.Context, now time.Time) (model.PomodoroStats, error)
	SessionsByTask(ctx context.Context, taskID int64) ([]model.PomodoroSession, error)
}

type Seeder interface {
	SeedSessions(now time.Time) []model.PomodoroSession
}

type Options struct {
	KV       *kv.Store
	Registry *datasync.Registry
	Seed     Seeder
	Remote   Remote
	Clock    *clock.Monotonic
	Logger   *slog.Logger
	// TickInterval is the RunTimer period. Defaults to one second.
	TickInterval time.Duration
}

type State struct {
	Sessions []model.PomodoroSession
	Current  *model.PomodoroSession
	Stats    *model.PomodoroStats
	Running  bool
	// TimeRemaining is the countdown in seconds.
	TimeRemaining int
	Settings      model.PomodoroSettings
	Loading       bool
	Error         string
}

type Store struct {
	kv     *kv.Store
	seed   Seeder
	remote Remote
	clock  *clock.Monotonic
	logger *slog.Logger
	tick   time.Duration

	state   *state.Container[State]
	tracker state.Tracker
}

func New(opts Options) *Store {
	s := &Store{
		kv:     opts.KV,
		seed:   opts.Seed,
		remote: opts.Remote,
		clock:  opts.Clock,
		logger: opts.Logger,
		tick:   opts.TickInterval,
	}
	if s.kv == nil {
		s.kv = kv.New(kv.NewMemoryBackend(0), "")
	}
	if s.clock == nil {
		s.clock = clock.NewMonotonic(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tick <= 0 {
		s.tick = time.Second
	}
	settings := s.loadSettings()
	s.state = state.New(State{
		Sessions:      s.loadSessions(),
		Settings:      settings,
		TimeRemaining: settings.WorkDuration * 60,
	})
	if opts.Registry != nil {
		opts.Registry.Register(Key, s.sync)
	}
	return s
}

func (s *Store) loadSessions() []model.PomodoroSession {
	sessions := kv.GetOr(s.kv, SessionsKey, []model.PomodoroSession(nil))
	if len(sessions) == 0 && s.seed != nil {
		sessions = s.seed.SeedSessions(s.clock.Now())
		if len(sessions) > 0 {
			s.kv.Set(SessionsKey, sessions)
		}
	}
	return sessions
}

func (s *Store) loadSettings() model.PomodoroSettings {
	return kv.GetOr(s.kv, SettingsKey, model.PomodoroSettings{}).WithDefaults()
}

func (s *Store) sync(context.Context) error {
	gen := s.tracker.Mark()
	st := s.state.Get()
	if err := s.kv.Put(SessionsKey, st.Sessions); err != nil {
		return err
	}
	if err := s.kv.Put(SettingsKey, st.Settings); err != nil {
		return err
	}
	s.tracker.Saved(gen)
	return nil
}

func (s *Store) State() State { return s.state.Get() }

func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

// Reload re-reads sessions and settings and resets the timer.
func (s *Store) Reload() {
	sessions := s.loadSessions()
	settings := s.loadSettings()
	s.state.Update(func(st *State) {
		st.Sessions = sessions
		st.Settings = settings
		st.Current = nil
		st.Stats = nil
		st.Running = false
		st.TimeRemaining = settings.WorkDuration * 60
		st.Error = ""
		s.tracker.Reset()
	})
}

func (s *Store) begin() {
	s.state.Update(func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

func (s *Store) fail(err error) error {
	s.state.Update(func(st *State) {
		st.Loading = false
		st.Error = err.Error()
	})
	return err
}

func (s *Store) FetchAll(ctx context.Context) ([]model.PomodoroSession, error) {
	s.begin()
	if s.remote != nil {
		sessions, err := s.remote.ListSessions(ctx)
		if err != nil {
			return nil, s.fail(err)
		}
		st := s.state.Update(func(st *State) {
			st.Sessions = sessions
			st.Loading = false
			s.tracker.Touch()
		})
		return st.Sessions, nil
	}
	if gen, clean := s.tracker.Clean(); clean {
		sessions := s.loadSessions()
		st := s.state.Update(func(st *State) {
			if s.tracker.Unchanged(gen) {
				st.Sessions = sessions
			}
			st.Loading = false
		})
		return st.Sessions, nil
	}
	return s.state.Update(func(st *State) { st.Loading = false }).Sessions, nil
}

// Start records a new session, makes it current and sets the countdown to
// its duration. The running flag is left as it is.
func (s *Store) Start(ctx context.Context, in model.SessionInput) (model.PomodoroSession, error) {
	if err := in.Validate(); err != nil {
		return model.PomodoroSession{}, err
	}

	var ps model.PomodoroSession
	if s.remote != nil {
		s.begin()
		started, err := s.remote.StartSession(ctx, in)
		if err != nil {
			return model.PomodoroSession{}, s.fail(err)
		}
		ps = started
	} else {
		ps = model.PomodoroSession{
			ID:              s.clock.NextID(),
			TaskID:          in.TaskID,
			SessionType:     in.SessionType,
			DurationMinutes: in.DurationMinutes,
			StartedAt:       s.clock.Now(),
		}
	}

	s.state.Update(func(st *State) {
		st.Sessions = append([]model.PomodoroSession{ps}, st.Sessions...)
		cur := ps
		st.Current = &cur
		st.TimeRemaining = ps.DurationMinutes * 60
		st.Loading = false
		s.tracker.Touch()
	})
	return ps, nil
}

// Complete marks a session completed. Completing twice keeps the first
// completion time. The timer stops when the session was the current one.
func (s *Store) Complete(ctx context.Context, id int64) (model.PomodoroSession, error) {
	var remote *model.PomodoroSession
	if s.remote != nil {
		s.begin()
		ps, err := s.remote.CompleteSession(ctx, id)
		if err != nil {
			return model.PomodoroSession{}, s.fail(err)
		}
		remote = &ps
	}

	at := s.clock.Now()
	var (
		done  model.PomodoroSession
		found bool
	)
	s.state.Update(func(st *State) {
		st.Loading = false
		i := slices.IndexFunc(st.Sessions, func(ps model.PomodoroSession) bool { return ps.ID == id })
		if remote != nil {
			done, found = *remote, true
		} else if i >= 0 {
			done, found = st.Sessions[i], true
			if !done.Completed {
				done.Completed = true
				done.CompletedAt = &at
			}
		}
		if !found {
			return
		}
		if i >= 0 {
			sessions := slices.Clone(st.Sessions)
			sessions[i] = done
			st.Sessions = sessions
		}
		if st.Current != nil && st.Current.ID == id {
			st.Current = nil
			st.Running = false
		}
		s.tracker.Touch()
	})
	if !found {
		s.logger.Warn("completion of unknown session", "id", id)
		return model.PomodoroSession{}, fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}
	return done, nil
}

// Cancel discards a session. Cancelling the current session stops the timer.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.CancelSession(ctx, id); err != nil {
			return s.fail(err)
		}
	}
	s.state.Update(func(st *State) {
		st.Sessions = slices.DeleteFunc(slices.Clone(st.Sessions), func(ps model.PomodoroSession) bool { return ps.ID == id })
		if st.Current != nil && st.Current.ID == id {
			st.Current = nil
			st.Running = false
		}
		st.Loading = false
		s.tracker.Touch()
	})
	return nil
}

// LoadStats aggregates the session history into State.Stats.
func (s *Store) LoadStats(ctx context.Context) (model.PomodoroStats, error) {
	s.begin()
	var st model.PomodoroStats
	if s.remote != nil {
		remote, err := s.remote.SessionStats(ctx, s.clock.Now())
		if err != nil {
			return model.PomodoroStats{}, s.fail(err)
		}
		st = remote
	} else {
		st = Stats(s.state.Get().Sessions, s.clock.Now())
	}
	s.state.Update(func(cur *State) {
		cur.Stats = &st
		cur.Loading = false
	})
	return st, nil
}

// ByTask returns the sessions linked to taskID. The collection is not
// narrowed.
func (s *Store) ByTask(ctx context.Context, taskID int64) ([]model.PomodoroSession, error) {
	if s.remote != nil {
		s.begin()
		sessions, err := s.remote.SessionsByTask(ctx, taskID)
		if err != nil {
			return nil, s.fail(err)
		}
		s.state.Update(func(st *State) { st.Loading = false })
		return sessions, nil
	}
	out := []model.PomodoroSession{}
	for _, ps := range s.state.Get().Sessions {
		if ps.TaskID != nil && *ps.TaskID == taskID {
			out = append(out, ps)
		}
	}
	return out, nil
}

// UpdateSettings merges p into the settings and persists them at once.
func (s *Store) UpdateSettings(p model.SettingsPatch) (model.PomodoroSettings, error) {
	if err := p.Validate(); err != nil {
		return model.PomodoroSettings{}, err
	}
	st := s.state.Update(func(st *State) {
		st.Settings = p.Apply(st.Settings)
	})
	if err := s.kv.Put(SettingsKey, st.Settings); err != nil {
		s.logger.Warn("saving pomodoro settings failed", "error", err)
		return st.Settings, err
	}
	return st.Settings, nil
}

// Stats aggregates sessions the same way the SQLite backend does: focus time
// counts completed work sessions only and "today" is the UTC day of now.
func Stats(sessions []model.PomodoroSession, now time.Time) model.PomodoroStats {
	day := now.UTC().Truncate(24 * time.Hour)
	var st model.PomodoroStats
	for _, ps := range sessions {
		today := !ps.StartedAt.Before(day) && ps.StartedAt.Before(day.Add(24*time.Hour))
		focus := ps.Completed && ps.SessionType == model.SessionWork
		st.TotalSessions++
		if ps.Completed {
			st.CompletedSessions++
		}
		if focus {
			st.TotalFocusTime += ps.DurationMinutes
		}
		if today {
			st.SessionsToday++
			if focus {
				st.FocusTimeToday += ps.DurationMinutes
			}
		}
	}
	return st
}
