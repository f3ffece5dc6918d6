package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops/internal/domain"
	"fieldops/internal/engine"
)

func dominationCmd() *cobra.Command {
	dom := &cobra.Command{Use: "domination", Aliases: []string{"dom"}, Short: "Run domination sessions"}
	dom.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.ListDominationSessions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Rate", "Duration", "Started"})
				for _, s := range list {
					duration := "-"
					if s.DurationMinutes != nil {
						duration = fmt.Sprintf("%dm", *s.DurationMinutes)
					}
					started := ""
					if s.StartedAt != nil {
						started = s.StartedAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{s.ID, s.Name, s.Status, fmt.Sprintf("%d/%ds", s.PointsPerTick, s.TickIntervalSec), duration, started})
				}
				tw.Render()
				return nil
			})
		},
	})
	dom.AddCommand(sessionCreateCmd())
	dom.AddCommand(sessionTeamCmd())
	dom.AddCommand(sessionPointCmd())

	for _, tr := range []struct {
		use   string
		short string
		run   func(e engine.Engine) func(ctx context.Context, id, actorID string) (domain.DominationSession, error)
	}{
		{"start", "Start the session clock", func(e engine.Engine) func(context.Context, string, string) (domain.DominationSession, error) {
			return e.StartDominationSession
		}},
		{"pause", "Pause a running session", func(e engine.Engine) func(context.Context, string, string) (domain.DominationSession, error) {
			return e.PauseDominationSession
		}},
		{"resume", "Resume a paused session", func(e engine.Engine) func(context.Context, string, string) (domain.DominationSession, error) {
			return e.ResumeDominationSession
		}},
		{"end", "End a session and freeze its scores", func(e engine.Engine) func(context.Context, string, string) (domain.DominationSession, error) {
			return e.EndDominationSession
		}},
	} {
		run := tr.run
		dom.AddCommand(&cobra.Command{
			Use:   tr.use + " <session-id>",
			Short: tr.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					s, err := run(e)(ctx, args[0], viper.GetString("actor-id"))
					if err != nil {
						return err
					}
					return printJSONOrTable(s)
				})
			},
		})
	}

	var team string
	capture := &cobra.Command{
		Use:   "capture <qr-token>",
		Short: "Capture a point for a session team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CaptureDominationPoint(ctx, args[0], team, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	capture.Flags().StringVar(&team, "team", "", "session team id")
	_ = capture.MarkFlagRequired("team")
	dom.AddCommand(capture)

	dom.AddCommand(&cobra.Command{
		Use:   "state <session-id>",
		Short: "Show holders and scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.DominationState(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				printDominationState(st)
				return nil
			})
		},
	})

	dom.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "End every session whose duration elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SweepDominationSessions(ctx)
				fmt.Printf("Ended %d session(s)\n", n)
				return err
			})
		},
	})
	return dom
}

func sessionCreateCmd() *cobra.Command {
	var opts engine.SessionCreateOptions
	var perTick, tick, duration int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session in DRAFT",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("points-per-tick") {
				opts.PointsPerTick = &perTick
			}
			if flags.Changed("tick") {
				opts.TickIntervalSec = &tick
			}
			if flags.Changed("duration") {
				opts.DurationMinutes = &duration
			}
			opts.OperationID = viper.GetString("operation")
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateDominationSession(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "session name")
	cmd.Flags().IntVar(&perTick, "points-per-tick", 0, "points per tick (default from fieldops.yml)")
	cmd.Flags().IntVar(&tick, "tick", 0, "tick interval in seconds (default from fieldops.yml)")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in minutes (unbounded when unset)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func sessionTeamCmd() *cobra.Command {
	var t domain.DominationTeam
	cmd := &cobra.Command{
		Use:   "team <session-id>",
		Short: "Add a team to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t.SessionID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.AddDominationTeam(ctx, t, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "team id (generated when empty)")
	cmd.Flags().StringVar(&t.Name, "name", "", "team name")
	cmd.Flags().StringVar(&t.Color, "color", "", "display color")
	cmd.Flags().IntVar(&t.Order, "order", 0, "display order")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func sessionPointCmd() *cobra.Command {
	var p domain.DominationPoint
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "point <session-id>",
		Short: "Add a capture point to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.SessionID = args[0]
			if cmd.Flags().Changed("lat") {
				p.Lat = &lat
			}
			if cmd.Flags().Changed("lon") {
				p.Lon = &lon
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.AddDominationPoint(ctx, p, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "point id (generated when empty)")
	cmd.Flags().StringVar(&p.Name, "name", "", "point name")
	cmd.Flags().StringVar(&p.QRToken, "qr-token", "", "QR token (generated when empty)")
	cmd.Flags().IntVar(&p.Order, "order", 0, "display order")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func printDominationState(st engine.DominationState) {
	names := make(map[string]string, len(st.Teams))
	for _, t := range st.Teams {
		names[t.ID] = t.Name
	}
	pts := newTable()
	pts.SetTitle(fmt.Sprintf("%s [%s]", st.Session.Name, st.Session.Status))
	pts.AppendHeader(table.Row{"Point", "Held by", "Since"})
	for _, p := range st.Points {
		holder, since := "-", ""
		if p.ControlledBy != nil {
			holder = p.ControlledBy.Name
		}
		if p.CapturedAt != nil {
			since = p.CapturedAt.Format(time.TimeOnly)
		}
		pts.AppendRow(table.Row{p.Name, holder, since})
	}
	pts.Render()

	scores := newTable()
	scores.AppendHeader(table.Row{"Team", "Points"})
	for _, s := range st.Scores {
		scores.AppendRow(table.Row{names[s.TeamID], s.Points})
	}
	scores.Render()
}
