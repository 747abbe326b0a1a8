package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/pomodoro"
)

var pomodoroCmd = &cobra.Command{
	Use:     "pomodoro",
	Aliases: []string{"pomo"},
	Short:   "Focus sessions and the countdown timer",
}

var pomodoroListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		sessions, err := a.Pomodoro.FetchAll(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions.")
			return nil
		}
		for _, s := range sessions {
			mark := colorize(colorYellow, "…")
			if s.Completed {
				mark = colorize(colorGreen, "✓")
			}
			fmt.Fprintf(out, "%s %d  %-11s %3dm  %s\n", mark, s.ID, s.SessionType, s.DurationMinutes, colorize(colorDim, ago(s.StartedAt)))
		}
		return nil
	}),
}

var pomodoroRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a session and count it down in the foreground",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		in, err := sessionInput(cmd, a.Pomodoro.State().Settings)
		if err != nil {
			return err
		}
		ps, err := a.Pomodoro.Start(cmd.Context(), in)
		if err != nil {
			return err
		}
		printStep("%s session %d, %d minutes (Ctrl-C to stop)", ps.SessionType, ps.ID, ps.DurationMinutes)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		unsubscribe := a.Pomodoro.Subscribe(func(st pomodoro.State) {
			if st.Current == nil || st.Current.ID != ps.ID {
				cancel()
				return
			}
			if st.TimeRemaining%60 == 0 {
				fmt.Fprintf(os.Stderr, "\r%s ", colorize(colorCyan, fmt.Sprintf("%02d:00 left", st.TimeRemaining/60)))
			}
		})
		defer unsubscribe()

		a.Pomodoro.StartTimer()
		_ = a.Pomodoro.RunTimer(ctx)
		fmt.Fprintln(os.Stderr)

		if cur := a.Pomodoro.State().Current; cur != nil && cur.ID == ps.ID {
			a.Pomodoro.PauseTimer()
			printWarning("Session %d stopped before the end", ps.ID)
			return nil
		}
		printSuccess("Session %d complete", ps.ID)
		return nil
	}),
}

var pomodoroStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Record a session without running the timer",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		in, err := sessionInput(cmd, a.Pomodoro.State().Settings)
		if err != nil {
			return err
		}
		ps, err := a.Pomodoro.Start(cmd.Context(), in)
		if err != nil {
			return err
		}
		printSuccess("Started session %d", ps.ID)
		return nil
	}),
}

var pomodoroCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a session completed",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, err := a.Pomodoro.Complete(cmd.Context(), id); err != nil {
			return err
		}
		printSuccess("Completed session %d", id)
		return nil
	}),
}

var pomodoroCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Discard a session",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := a.Pomodoro.Cancel(cmd.Context(), id); err != nil {
			return err
		}
		printSuccess("Cancelled session %d", id)
		return nil
	}),
}

var pomodoroStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show focus statistics",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		st, err := a.Pomodoro.LoadStats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sessions:   %d (%d completed)\n", st.TotalSessions, st.CompletedSessions)
		fmt.Fprintf(out, "Focus time: %d min\n", st.TotalFocusTime)
		fmt.Fprintf(out, "Today:      %d sessions, %d min\n", st.SessionsToday, st.FocusTimeToday)
		return nil
	}),
}

var pomodoroSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change timer lengths",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		var p model.SettingsPatch
		changed := false
		for flag, dst := range map[string]**int{
			"work":        &p.WorkDuration,
			"short-break": &p.ShortBreakDuration,
			"long-break":  &p.LongBreakDuration,
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetInt(flag)
				*dst = &v
				changed = true
			}
		}

		settings := a.Pomodoro.State().Settings
		if changed {
			update := a.Pomodoro.UpdateSettings
			if client, ok := serverClient(a); ok {
				update = func(p model.SettingsPatch) (model.PomodoroSettings, error) {
					return client.updateSettings(cmd.Context(), p)
				}
			}
			var err error
			if settings, err = update(p); err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Work:        %d min\n", settings.WorkDuration)
		fmt.Fprintf(out, "Short break: %d min\n", settings.ShortBreakDuration)
		fmt.Fprintf(out, "Long break:  %d min\n", settings.LongBreakDuration)
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{pomodoroRunCmd, pomodoroStartCmd} {
		c.Flags().String("type", string(model.SessionWork), "work, short_break or long_break")
		c.Flags().Int("minutes", 0, "session length (default from settings)")
		c.Flags().Int64("task", 0, "task this session is for")
	}
	pomodoroSettingsCmd.Flags().Int("work", 0, "work session minutes")
	pomodoroSettingsCmd.Flags().Int("short-break", 0, "short break minutes")
	pomodoroSettingsCmd.Flags().Int("long-break", 0, "long break minutes")

	pomodoroCmd.AddCommand(pomodoroListCmd)
	pomodoroCmd.AddCommand(pomodoroRunCmd)
	pomodoroCmd.AddCommand(pomodoroStartCmd)
	pomodoroCmd.AddCommand(pomodoroCompleteCmd)
	pomodoroCmd.AddCommand(pomodoroCancelCmd)
	pomodoroCmd.AddCommand(pomodoroStatsCmd)
	pomodoroCmd.AddCommand(pomodoroSettingsCmd)
}

// sessionInput builds a session from the --type, --minutes and --task
// flags. Without --minutes the length comes from settings.
func sessionInput(cmd *cobra.Command, settings model.PomodoroSettings) (model.SessionInput, error) {
	typ, _ := cmd.Flags().GetString("type")
	minutes, _ := cmd.Flags().GetInt("minutes")

	in := model.SessionInput{SessionType: model.SessionType(typ), DurationMinutes: minutes}
	if !in.SessionType.Valid() {
		return in, &model.ValidationError{Field: "type", Message: "must be work, short_break or long_break"}
	}
	if minutes == 0 {
		switch in.SessionType {
		case model.SessionShortBreak:
			in.DurationMinutes = settings.ShortBreakDuration
		case model.SessionLongBreak:
			in.DurationMinutes = settings.LongBreakDuration
		default:
			in.DurationMinutes = settings.WorkDuration
		}
	}
	if cmd.Flags().Changed("task") {
		v, _ := cmd.Flags().GetInt64("task")
		in.TaskID = &v
	}
	return in, nil
}
