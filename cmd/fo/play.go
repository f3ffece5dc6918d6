package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops/internal/domain"
	"fieldops/internal/engine"
)

// teamAction builds a play command taking the objective id followed by
// nargs extra arguments. The acting team comes from --team.
func teamAction(use, short string, nargs int, run func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs + 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			teamID := viper.GetString("team")
			if teamID == "" {
				return fmt.Errorf("--team required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := run(ctx, e, args[0], teamID, args[1:])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

// positionAction is a teamAction whose position comes from --lat/--lon.
func positionAction(use, short string, run func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error)) *cobra.Command {
	var lat, lon float64
	cmd := teamAction(use, short, 0, func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
		return run(ctx, e, objectiveID, teamID, lat, lon)
	})
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func playCmd() *cobra.Command {
	play := &cobra.Command{Use: "play", Short: "Act on objectives as a team"}
	play.PersistentFlags().String("team", "", "acting team id")
	_ = viper.BindPFlag("team", play.PersistentFlags().Lookup("team"))

	play.AddCommand(&cobra.Command{
		Use:   "scan <qr-token>",
		Short: "Resolve a scanned QR token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			teamID := viper.GetString("team")
			if teamID == "" {
				return fmt.Errorf("--team required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ScanToken(ctx, args[0], teamID)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	play.AddCommand(teamAction("code <objective-id> <code>", "Submit a physical code", 1,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error) {
			return e.SubmitCode(ctx, objectiveID, teamID, args[0])
		}))
	play.AddCommand(teamAction("qr <objective-id>", "Complete a QR objective", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.ScanQRSimple(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("riddle <objective-id>", "Read the riddle of a QR enigma", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.GetRiddle(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("answer <objective-id> <answer>", "Answer a QR enigma", 1,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error) {
			return e.SubmitRiddleAnswer(ctx, objectiveID, teamID, args[0])
		}))
	play.AddCommand(teamAction("vip <objective-id>", "Report a VIP elimination", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.EliminateVIP(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("morse <objective-id> <message>", "Submit a decoded radio message", 1,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error) {
			return e.SubmitMorse(ctx, objectiveID, teamID, args[0])
		}))
	play.AddCommand(teamAction("item <objective-id> <item>", "Declare a collected item", 1,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error) {
			return e.CollectItem(ctx, objectiveID, teamID, args[0])
		}))
	play.AddCommand(teamAction("step <objective-id>", "Show the current enigma step", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.CurrentStep(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("step-answer <objective-id> <answer>", "Answer the current enigma step", 1,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error) {
			return e.SubmitStepAnswer(ctx, objectiveID, teamID, args[0])
		}))
	play.AddCommand(teamAction("race-start <objective-id>", "Start a time race", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.StartTimeRace(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("checkpoint <objective-id> <n>", "Validate the next race checkpoint", 1,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, args []string) (any, error) {
			n, err := engine.ParseCheckpoint(args[0])
			if err != nil {
				return nil, err
			}
			return e.ValidateCheckpoint(ctx, objectiveID, teamID, n)
		}))
	play.AddCommand(teamAction("conditional <objective-id>", "Check a conditional objective", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.EvaluateConditional(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("pool <objective-id>", "Draw the team's random objectives", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.DrawRandomPool(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("sabotage-start <objective-id>", "Plant a sabotage charge", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.StartSabotage(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("sabotage-complete <objective-id>", "Confirm a sabotage", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.CompleteSabotage(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("defuse <objective-id>", "Defuse the team's sabotage (arbitrator)", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.DefuseSabotage(ctx, objectiveID, teamID, viper.GetString("actor-id"))
		}))
	play.AddCommand(teamAction("hack-start <objective-id>", "Start hacking an antenna", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.StartAntennaHack(ctx, objectiveID, teamID)
		}))
	play.AddCommand(teamAction("hack-complete <objective-id>", "Finish an antenna hack", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.CompleteAntennaHack(ctx, objectiveID, teamID)
		}))
	play.AddCommand(positionAction("gps-start <objective-id>", "Enter a GPS capture zone",
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error) {
			return e.StartGPSCapture(ctx, objectiveID, teamID, lat, lon)
		}))
	play.AddCommand(positionAction("gps-complete <objective-id>", "Complete a GPS capture",
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error) {
			return e.CompleteGPSCapture(ctx, objectiveID, teamID, lat, lon)
		}))
	play.AddCommand(positionAction("defense-start <objective-id>", "Start defending a point",
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error) {
			return e.StartPointDefense(ctx, objectiveID, teamID, lat, lon)
		}))
	play.AddCommand(positionAction("defense-complete <objective-id>", "Complete a point defense",
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error) {
			return e.CompletePointDefense(ctx, objectiveID, teamID, lat, lon)
		}))
	play.AddCommand(positionAction("extraction-start <objective-id>", "Reach the extraction zone",
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error) {
			return e.StartExtraction(ctx, objectiveID, teamID, lat, lon)
		}))
	play.AddCommand(positionAction("extraction-complete <objective-id>", "Complete an extraction",
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, lat, lon float64) (any, error) {
			return e.CompleteExtraction(ctx, objectiveID, teamID, lat, lon)
		}))
	play.AddCommand(teamAction("live-event <objective-id>", "Award a live event (arbitrator)", 0,
		func(ctx context.Context, e engine.Engine, objectiveID, teamID string, _ []string) (any, error) {
			return e.TriggerLiveEvent(ctx, objectiveID, teamID, viper.GetString("actor-id"))
		}))
	play.AddCommand(progressCmd())
	return play
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Objectives of the operation with the team's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			teamID := viper.GetString("team")
			if teamID == "" {
				return fmt.Errorf("--team required")
			}
			return withOperation(cmd.Context(), func(ctx context.Context, e engine.Engine, o domain.Operation) error {
				p, err := e.TeamProgress(ctx, o.ID, teamID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				tw := newTable()
				tw.SetTitle(fmt.Sprintf("%s: %d pts, %d/%d", teamID, p.Points, p.Completed, p.Total))
				tw.AppendHeader(table.Row{"ID", "Type", "Name", "Points", "State"})
				for _, item := range p.Objectives {
					state := "open"
					switch {
					case item.Completed:
						state = "done"
					case item.Locked:
						state = "locked"
					}
					tw.AppendRow(table.Row{item.ID, item.Type, item.Name, item.Points, state})
				}
				tw.Render()
				return nil
			})
		},
	}
}
