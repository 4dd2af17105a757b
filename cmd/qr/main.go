package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"quorum/internal/compose"
	"quorum/internal/config"
	"quorum/internal/coordinator"
	"quorum/internal/db"
	"quorum/internal/directory"
	"quorum/internal/inbox"
	"quorum/internal/migrate"
	"quorum/internal/repo"
	"quorum/internal/resolver"
	"quorum/internal/server"
	"quorum/internal/signal"
)

var rootCmd = &cobra.Command{
	Use:   "qr",
	Short: "Quorum CLI",
	Long: `Quorum coordinates multi-party decisions and the task inboxes they feed.
Core concepts:
- Workspace: your .quorum directory with the database; the rulebook lives in quorum.yml.
- Decision: a proposal in a category that must collect a response from every
  required stakeholder before the initiator records a ruling.
- Directory: the stakeholders, their roles and communication styles.
- Tasks: inbox items composed per recipient; statuses go unread -> read ->
  in_progress -> completed (delegated/deferred/cancelled are exits).
- Event log: diary of everything that happened, view with 'qr log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("QUORUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// env bundles everything a command needs against one open workspace.
type env struct {
	Conn        *sql.DB
	Config      *config.Config
	Repo        repo.Repo
	Directory   *directory.Directory
	Inbox       *inbox.Store
	Coordinator *coordinator.Coordinator
	Logger      *zap.Logger
}

func withEnv(ctx context.Context, fn func(context.Context, *env) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	dir := directory.New(cfg)
	ib := inbox.New(conn, logger)
	coord := coordinator.New(conn, ib, resolver.New(cfg), compose.New(cfg, dir, nil), logger)
	if err := coord.Resume(ctx); err != nil {
		return err
	}
	return fn(ctx, &env{
		Conn:        conn,
		Config:      cfg,
		Repo:        repo.Repo{DB: conn},
		Directory:   dir,
		Inbox:       ib,
		Coordinator: coord,
		Logger:      logger,
	})
}

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{
		Use:   "decision",
		Short: "Manage decisions",
		Long:  "Decisions fan a proposal out to every required stakeholder in the category, collect their responses, and hand the final ruling back to the initiator.",
	}
	dec.AddCommand(decisionStartCmd())
	dec.AddCommand(decisionRespondCmd())
	dec.AddCommand(decisionRuleCmd())
	dec.AddCommand(decisionStatusCmd())
	dec.AddCommand(decisionCancelCmd())
	dec.AddCommand(decisionListCmd())
	dec.AddCommand(decisionWaitCmd())
	return dec
}

func decisionStartCmd() *cobra.Command {
	var category, proposal string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				d, err := e.Coordinator.Start(ctx, category, viper.GetString("actor-id"), proposal)
				if err != nil {
					return err
				}
				st, err := e.Coordinator.Status(ctx, d.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "decision category")
	cmd.Flags().StringVar(&proposal, "proposal", "", "proposal text")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("proposal")
	return cmd
}

func decisionRespondCmd() *cobra.Command {
	var decisionText, reason string
	cmd := &cobra.Command{
		Use:   "respond <decision-id>",
		Short: "Record a response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				_, err := e.Coordinator.RecordResponse(ctx, args[0], viper.GetString("actor-id"), decisionText, reason)
				if err != nil {
					return err
				}
				st, err := e.Coordinator.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&decisionText, "decision", "", "response decision (e.g. approve, reject)")
	cmd.Flags().StringVar(&reason, "reason", "", "reasoning")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func decisionRuleCmd() *cobra.Command {
	var ruling string
	cmd := &cobra.Command{
		Use:   "rule <decision-id>",
		Short: "Record the final ruling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				_, err := e.Coordinator.RecordRuling(ctx, args[0], viper.GetString("actor-id"), ruling)
				if err != nil {
					return err
				}
				st, err := e.Coordinator.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&ruling, "ruling", "", "ruling text")
	_ = cmd.MarkFlagRequired("ruling")
	return cmd
}

func decisionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <decision-id>",
		Short: "Show decision status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				st, err := e.Coordinator.Status(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("Decision: %s (%s)\n", st.DecisionID, st.Status)
				fmt.Printf("Category: %s  Initiator: %s\n", st.Category, st.InitiatorID)
				fmt.Printf("Proposal: %s\n", st.Proposal)
				fmt.Printf("Responses: %d/%d", st.ReceivedCount, st.RequiredCount)
				if len(st.PendingResponders) > 0 {
					fmt.Printf("  pending: %s", strings.Join(st.PendingResponders, ", "))
				}
				fmt.Println()
				for id, r := range st.Responses {
					fmt.Printf("  %s: %s", id, r.Decision)
					if r.Reason != "" {
						fmt.Printf(" (%s)", r.Reason)
					}
					fmt.Println()
				}
				if st.FinalRuling != nil {
					fmt.Printf("Ruling: %s\n", *st.FinalRuling)
				}
				for _, de := range st.DispatchErrors {
					fmt.Printf("dispatch error: %s: %s\n", de.RecipientID, de.Error)
				}
				return nil
			})
		},
	}
	return cmd
}

func decisionCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <decision-id>",
		Short: "Cancel a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				d, err := e.Coordinator.Cancel(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func decisionListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				items, err := e.Coordinator.List(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Initiator", "Status", "Responses", "Pending"})
				for _, st := range items {
					tw.AppendRow(table.Row{
						st.DecisionID, st.Category, st.InitiatorID, st.Status,
						fmt.Sprintf("%d/%d", st.ReceivedCount, st.RequiredCount),
						strings.Join(st.PendingResponders, ","),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func decisionWaitCmd() *cobra.Command {
	var until string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait <decision-id>",
		Short: "Block until all responses are in (or the decision completes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				var err error
				if until == "complete" {
					err = e.Coordinator.WaitComplete(ctx, args[0])
				} else {
					err = e.Coordinator.WaitAwaitingRuling(ctx, args[0])
				}
				if err != nil {
					return err
				}
				st, err := e.Coordinator.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "responses", "wait target (responses, complete)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	return cmd
}

func inboxCmd() *cobra.Command {
	ib := &cobra.Command{
		Use:   "inbox",
		Short: "Recipient inboxes",
		Long:  "Inboxes rank a recipient's tasks by priority then urgency then recency, with derived urgent/pending/unread views and a dashboard summary.",
	}
	ib.AddCommand(inboxListCmd())
	ib.AddCommand(inboxSummaryCmd())
	ib.AddCommand(inboxReadCmd())
	ib.AddCommand(inboxCompleteCmd())
	ib.AddCommand(inboxSetStatusCmd())
	return ib
}

func recipientOrActor(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return viper.GetString("actor-id")
}

func inboxListCmd() *cobra.Command {
	var view string
	var limit int
	cmd := &cobra.Command{
		Use:   "list [recipient-id]",
		Short: "List ranked tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient := recipientOrActor(args)
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				tasks, err := e.Inbox.GetRanked(ctx, recipient)
				if err != nil {
					return err
				}
				switch view {
				case "urgent":
					tasks = inbox.Urgent(tasks)
				case "pending":
					tasks = inbox.PendingDecisions(tasks)
				case "unread":
					tasks = inbox.UnreadView(tasks, limit)
				default:
					if limit > 0 && len(tasks) > limit {
						tasks = tasks[:limit]
					}
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "From", "Type", "Pri", "Urg", "Status", "Text"})
				for _, t := range tasks {
					text := t.PersonalizedText
					if text == "" {
						text = t.OriginalText
					}
					if len(text) > 60 {
						text = text[:57] + "..."
					}
					tw.AppendRow(table.Row{t.ID, t.SenderID, t.Type, t.Priority, t.Urgency, t.Status, text})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "view (ranked, urgent, pending, unread)")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap result count")
	return cmd
}

func inboxSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [recipient-id]",
		Short: "Dashboard summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient := recipientOrActor(args)
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				s, err := e.Inbox.DashboardSummary(ctx, recipient)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Inbox for %s\n", recipient)
				fmt.Printf("  total: %d  unread: %d  urgent: %d  pending decisions: %d\n",
					s.Total, s.Unread, s.Urgent, s.PendingDecisions)
				for _, t := range s.RecentTasks {
					fmt.Printf("  [%d/%d] %s: %s\n", t.Priority, t.Urgency, t.SenderID, t.OriginalText)
				}
				return nil
			})
		},
	}
	return cmd
}

func inboxReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <task-id>",
		Short: "Mark a task read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				t, err := e.Inbox.MarkRead(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func inboxCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				t, err := e.Inbox.MarkCompleted(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func inboxSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <task-id>",
		Short: "Apply a task status transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				t, err := e.Inbox.UpdateStatus(ctx, args[0], viper.GetString("actor-id"), status)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage task records"}
	task.AddCommand(taskSendCmd())
	task.AddCommand(taskGetCmd())
	return task
}

func taskSendCmd() *cobra.Command {
	var recipient, category, text string
	var urgency int
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Compose and deliver a task to a recipient",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				comp := compose.New(e.Config, e.Directory, nil)
				rec := comp.Compose(category, viper.GetString("actor-id"), recipient, text, urgency)
				t, err := e.Inbox.CreateTask(ctx, rec)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "to", "", "recipient id")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().IntVar(&urgency, "urgency", 0, "base urgency (1-5, 0 derives from keywords)")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func taskGetCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Get one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if recipient == "" {
					recipient = viper.GetString("actor-id")
				}
				t, err := e.Inbox.Get(ctx, args[0], recipient)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient id (defaults to actor)")
	return cmd
}

func directoryCmd() *cobra.Command {
	dir := &cobra.Command{Use: "directory", Short: "Stakeholder directory"}
	dir.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stakeholders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				items := e.Directory.List()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Department", "Tone"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Role, s.Department, s.Style.Tone})
				}
				tw.Render()
				return nil
			})
		},
	})
	return dir
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the rulebook",
		Long:  "Config is the rulebook (quorum.yml): the stakeholder directory, decision categories with their required responders, and composer keyword/template rules.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: decisions, responses, rulings, task transitions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var afterID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				events, err := e.Repo.ListEvents(ctx, afterID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&afterID, "after-id", 0, "only events after this id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, reminderURL, reminderSecret, redisURL string
	var reminderInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			dir := directory.New(cfg)
			ib := inbox.New(conn, logger)
			coord := coordinator.New(conn, ib, resolver.New(cfg), compose.New(cfg, dir, nil), logger)
			if err := coord.Resume(cmd.Context()); err != nil {
				return err
			}

			handler, err := server.New(server.Config{
				Coordinator: coord,
				Inbox:       ib,
				Directory:   dir,
				Repo:        repo.Repo{DB: conn},
				BasePath:    basePath,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			var once signal.Once
			if redisURL != "" {
				opt, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}
				once = signal.NewRedisOnce(redis.NewClient(opt), 24*time.Hour, logger)
			}
			server.StartReminderLoop(cmd.Context(), server.ReminderConfig{
				URL:      reminderURL,
				Secret:   reminderSecret,
				Interval: reminderInterval,
				Repo:     repo.Repo{DB: conn},
				Resolver: resolver.New(cfg),
				Once:     once,
				Logger:   logger,
			})

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Quorum API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&reminderURL, "reminder-url", "", "escalation reminder webhook URL")
	cmd.Flags().StringVar(&reminderSecret, "reminder-secret", "", "shared secret header for reminders")
	cmd.Flags().DurationVar(&reminderInterval, "reminder-interval", 30*time.Second, "reminder sweep interval")
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "redis URL for cross-process reminder dedupe")
	return cmd
}

// --- helpers ---

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
