package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops/internal/app"
	"fieldops/internal/auth"
	"fieldops/internal/db"
	"fieldops/internal/domain"
	"fieldops/internal/engine"
	"fieldops/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "fo",
	Short: "Fieldops CLI",
	Long: `Fieldops runs field exercises: operations with objectives that teams complete
and domination sessions where teams capture and hold points.
- Workspace: a directory holding fieldops.yml and the .fieldops database.
- Operation: one exercise; DRAFT -> PUBLISHED -> ACTIVE -> COMPLETED. Teams play only while ACTIVE.
- Objectives: sixteen mechanics (codes, QR scans, GPS zones, timers, races...). Each team completes each objective at most once.
- Domination: sessions with points identified by QR tokens; holding a point earns points per tick.
- Event log: every change is journaled, view it with 'fo log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("operation", "", "operation id (defaults to the only operation)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	for _, name := range []string{"workspace", "json", "actor-id", "operation", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(operationCmd())
	rootCmd.AddCommand(objectiveCmd())
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(dominationCmd())
	rootCmd.AddCommand(scoreboardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default fieldops.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			res, err := app.InitWorkspace(workspace, force)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			if res.ConfigWritten {
				fmt.Printf("Initialized workspace in %s\n", workspace)
			} else {
				fmt.Printf("Workspace %s already initialized (use --force to rewrite fieldops.yml)\n", workspace)
			}
			fmt.Printf("Database %s at schema version %d\n", res.DBPath, res.SchemaVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing fieldops.yml")
	return cmd
}

func scenarioCmd() *cobra.Command {
	sc := &cobra.Command{Use: "scenario", Short: "Import exercises from YAML"}
	sc.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Create an operation, its teams, objectives and sessions from a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadScenario(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := app.Import(ctx, e, s, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported operation %s (%s): %d teams, %d objectives, %d sessions\n",
					res.Operation.ID, res.Operation.Status, len(res.Teams), len(res.Objectives), len(res.Sessions))
				return nil
			})
		},
	})
	return sc
}

func operationCmd() *cobra.Command {
	op := &cobra.Command{Use: "operation", Short: "Manage operations"}
	op.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ops, err := e.ListOperations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ops)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, o := range ops {
					tw.AppendRow(table.Row{o.ID, o.Name, o.Status, o.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	})

	var id, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an operation in DRAFT",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOperation(ctx, id, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "operation id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "operation name")
	_ = create.MarkFlagRequired("name")
	op.AddCommand(create)

	op.AddCommand(&cobra.Command{
		Use:   "status <DRAFT|PUBLISHED|ACTIVE|COMPLETED>",
		Short: "Move the operation through its lifecycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperation(cmd.Context(), func(ctx context.Context, e engine.Engine, o domain.Operation) error {
				updated, err := e.SetOperationStatus(ctx, o.ID, domain.OperationStatus(strings.ToUpper(args[0])), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	})

	var teamName, invitation string
	team := &cobra.Command{
		Use:   "team <team-id>",
		Short: "Invite a team or change its invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperation(cmd.Context(), func(ctx context.Context, e engine.Engine, o domain.Operation) error {
				t, err := e.AddOperationTeam(ctx, domain.OperationTeam{
					OperationID: o.ID,
					TeamID:      args[0],
					Name:        teamName,
					Invitation:  domain.InvitationStatus(strings.ToUpper(invitation)),
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	team.Flags().StringVar(&teamName, "name", "", "display name")
	team.Flags().StringVar(&invitation, "invitation", "", "PENDING, ACCEPTED or DECLINED (default ACCEPTED)")
	op.AddCommand(team)
	return op
}

func objectiveCmd() *cobra.Command {
	obj := &cobra.Command{Use: "objective", Short: "Manage objectives"}
	obj.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List objectives of the operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperation(cmd.Context(), func(ctx context.Context, e engine.Engine, o domain.Operation) error {
				list, err := e.ListObjectives(ctx, o.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Type", "Name", "Points", "Parent", "QR token"})
				for _, item := range list {
					parent := ""
					if item.ParentObjectiveID != nil {
						parent = *item.ParentObjectiveID
					}
					tw.AppendRow(table.Row{item.ID, item.Type, item.Name, item.Points, parent, item.QRToken})
				}
				tw.Render()
				return nil
			})
		},
	})

	var opts engine.ObjectiveCreateOptions
	var typ, cfg string
	var points int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an objective",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readConfigFlag(cfg)
			if err != nil {
				return err
			}
			return withOperation(cmd.Context(), func(ctx context.Context, e engine.Engine, o domain.Operation) error {
				opts.OperationID = o.ID
				opts.Type = domain.ObjectiveType(strings.ToUpper(typ))
				opts.Config = raw
				opts.ActorID = viper.GetString("actor-id")
				if cmd.Flags().Changed("points") {
					opts.Points = &points
				}
				created, err := e.CreateObjective(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&opts.ID, "id", "", "objective id (generated when empty)")
	create.Flags().StringVar(&typ, "type", "", "objective type, e.g. PHYSICAL_CODE")
	create.Flags().StringVar(&opts.Name, "name", "", "objective name")
	create.Flags().StringVar(&opts.Description, "description", "", "description")
	create.Flags().IntVar(&points, "points", 0, "points awarded (default from fieldops.yml)")
	create.Flags().StringVar(&cfg, "config", "", "config JSON, or @file")
	create.Flags().StringVar(&opts.ParentObjectiveID, "parent", "", "prerequisite objective id")
	create.Flags().IntVar(&opts.Order, "order", 0, "display order")
	_ = create.MarkFlagRequired("type")
	_ = create.MarkFlagRequired("name")
	obj.AddCommand(create)

	obj.AddCommand(&cobra.Command{
		Use:   "show <objective-id>",
		Short: "Show an objective with its configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetObjective(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	})

	var name, description, parent, updCfg string
	var updPoints, order int
	update := &cobra.Command{
		Use:   "update <objective-id>",
		Short: "Update an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := engine.ObjectiveUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			flags := cmd.Flags()
			if flags.Changed("name") {
				upd.Name = &name
			}
			if flags.Changed("description") {
				upd.Description = &description
			}
			if flags.Changed("points") {
				upd.Points = &updPoints
			}
			if flags.Changed("parent") {
				upd.SetParent = &parent
			}
			if flags.Changed("order") {
				upd.Order = &order
			}
			if flags.Changed("config") {
				raw, err := readConfigFlag(updCfg)
				if err != nil {
					return err
				}
				upd.Config = raw
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.UpdateObjective(ctx, upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "objective name")
	update.Flags().StringVar(&description, "description", "", "description")
	update.Flags().IntVar(&updPoints, "points", 0, "points awarded")
	update.Flags().StringVar(&parent, "parent", "", "prerequisite objective id (empty detaches)")
	update.Flags().IntVar(&order, "order", 0, "display order")
	update.Flags().StringVar(&updCfg, "config", "", "config JSON, or @file")
	obj.AddCommand(update)
	return obj
}

func scoreboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scoreboard",
		Short: "Rank the teams of the operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperation(cmd.Context(), func(ctx context.Context, e engine.Engine, o domain.Operation) error {
				board, err := e.Scoreboard(ctx, o.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				tw := newTable()
				tw.SetTitle(o.Name)
				tw.AppendHeader(table.Row{"#", "Team", "Points", "Completed"})
				for _, s := range board {
					tw.AppendRow(table.Row{s.Rank, s.Name, s.Points, s.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.OperationID = viper.GetString("operation")
				evts, err := e.Repo.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with FIELDOPS_JWT_SECRET",
		Long: `Players get a token whose subject is their team id. Staff tokens carry
the arbitrator or designer role; arbitrators may act for any team.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("FIELDOPS_JWT_SECRET is required")
			}
			tok, err := auth.Issue(secret, subject, roles, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "team id or staff member id")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (arbitrator, designer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// --- helpers ---

func newLogger(w io.Writer, jsonFormat bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.OpenWorkspace(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine(newLogger(os.Stderr, false)))
}

func withOperation(ctx context.Context, fn func(context.Context, engine.Engine, domain.Operation) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		o, err := app.ResolveOperation(ctx, e.Repo, viper.GetString("operation"))
		if err != nil {
			return err
		}
		return fn(ctx, e, o)
	})
}

func readConfigFlag(v string) (json.RawMessage, error) {
	if v == "" {
		return nil, nil
	}
	data := []byte(v)
	if strings.HasPrefix(v, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(v, "@"))
		if err != nil {
			return nil, err
		}
		data = b
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("--config is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
