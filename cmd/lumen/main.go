package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lumenforge/internal/config"
	"lumenforge/internal/db"
	"lumenforge/internal/domain"
	"lumenforge/internal/engine"
	"lumenforge/internal/migrate"
	"lumenforge/internal/repo"
	"lumenforge/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Lumenforge CLI",
	Long: `Lumenforge runs a collaborative film studio's contribution pipeline.
Tasks belong to production phases and carry three independent rewards
(price, points, lumens). Contributors claim a task, deliver work, an AI
reviewer scores it, a human makes the final call and approval settles
payment, points and lumens atomically.`,
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
	viper.SetEnvPrefix("LUMENFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(abandonCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(rescoreCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(contributorCmd())
	rootCmd.AddCommand(thresholdCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage studio config"}
	var studioID string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lumenforge.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if studioID == "" {
				studioID = "my-studio"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(studioID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&studioID, "studio", "", "studio identifier")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	cmd.AddCommand(initCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskUnlockCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, desc, phase, price, reward, difficulty string
	var points, minLevel int
	var locked bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				priceDec, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("invalid --price: %w", err)
				}
				rewardDec := decimal.Zero
				if reward != "" {
					if rewardDec, err = decimal.NewFromString(reward); err != nil {
						return fmt.Errorf("invalid --lumens: %w", err)
					}
				}
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Title:       title,
					Description: desc,
					Phase:       phase,
					Price:       priceDec,
					Points:      points,
					LumenReward: rewardDec,
					Difficulty:  domain.Difficulty(difficulty),
					MinLevel:    minLevel,
					Locked:      locked,
					ActorID:     viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "task brief")
	cmd.Flags().StringVar(&phase, "phase", "", "production phase")
	cmd.Flags().StringVar(&price, "price", "0", "payment amount")
	cmd.Flags().StringVar(&reward, "lumens", "0", "lumen reward")
	cmd.Flags().StringVar(&difficulty, "difficulty", "standard", "starter|standard|advanced|expert")
	cmd.Flags().IntVar(&points, "points", 0, "points awarded on validation")
	cmd.Flags().IntVar(&minLevel, "min-level", 1, "minimum contributor level")
	cmd.Flags().BoolVar(&locked, "locked", false, "create the task locked")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, phase string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTasks(ctx, repo.TaskFilters{Status: status, Phase: phase, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Phase", "Status", "Price", "Lumens", "Claimant"})
				for _, t := range items {
					claimant := ""
					if t.ClaimantID != nil {
						claimant = *t.ClaimantID
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Phase, t.Status, t.Price.String(), t.LumenReward.String(), claimant})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&phase, "phase", "", "filter by phase")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskUnlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock <task-id>",
		Short: "Make a locked task claimable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UnlockTask(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func claimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <task-id>",
		Short: "Claim an available task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Claim(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Claimed %s (%s)\n", t.ID, t.Title)
				return nil
			})
		},
	}
	return cmd
}

func abandonCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "abandon <task-id>",
		Short: "Release a held claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					t   domain.Task
					err error
				)
				if force {
					t, err = e.ForceReopen(ctx, args[0], viper.GetString("user-id"))
				} else {
					t, err = e.Abandon(ctx, args[0], viper.GetString("user-id"))
				}
				if err != nil {
					return err
				}
				fmt.Printf("Task %s is available again\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "release someone else's claim (operator action)")
	return cmd
}

func submitCmd() *cobra.Command {
	var notes, attachment string
	cmd := &cobra.Command{
		Use:   "submit <task-id>",
		Short: "Deliver work for a claimed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Submit(ctx, engine.SubmitOptions{
					TaskID:        args[0],
					UserID:        viper.GetString("user-id"),
					Notes:         notes,
					AttachmentRef: attachment,
				})
				if err != nil {
					return err
				}
				score := "-"
				if s.AIScore != nil {
					score = fmt.Sprintf("%d", *s.AIScore)
				}
				fmt.Printf("Submission %s scored %s (%s)\n", s.ID, score, s.Status)
				if s.AIFeedback != "" {
					fmt.Println(s.AIFeedback)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "delivery notes")
	cmd.Flags().StringVar(&attachment, "attachment", "", "attachment reference")
	return cmd
}

func submissionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "submission", Short: "Inspect submissions"}
	var taskID, author, status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSubmissions(ctx, repo.SubmissionFilters{TaskID: taskID, AuthorID: author, Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Author", "Score", "Status"})
				for _, s := range items {
					score := ""
					if s.AIScore != nil {
						score = fmt.Sprintf("%d", *s.AIScore)
					}
					tw.AppendRow(table.Row{s.ID, s.TaskID, s.AuthorID, score, s.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&taskID, "task", "", "filter by task")
	listCmd.Flags().StringVar(&author, "author", "", "filter by author")
	listCmd.Flags().StringVar(&status, "status", "", "filter by status")
	listCmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	showCmd := &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Show a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetSubmission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func reviewCmd() *cobra.Command {
	var approve, reject bool
	var feedback string
	cmd := &cobra.Command{
		Use:   "review <submission-id>",
		Short: "Record the human decision on a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("pass exactly one of --approve or --reject")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Review(ctx, engine.ReviewOptions{
					SubmissionID: args[0],
					ReviewerID:   viper.GetString("user-id"),
					Approve:      approve,
					Feedback:     feedback,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Submission %s -> %s\n", s.ID, s.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the work and settle the task")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the work and reopen the task")
	cmd.Flags().StringVar(&feedback, "feedback", "", "reviewer feedback")
	return cmd
}

func rescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore <submission-id>",
		Short: "Rerun the scoring stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Rescore(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				score := "-"
				if s.AIScore != nil {
					score = fmt.Sprintf("%d", *s.AIScore)
				}
				fmt.Printf("Submission %s rescored %s (%s)\n", s.ID, score, s.Status)
				return nil
			})
		},
	}
	return cmd
}

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payment", Short: "Inspect and settle payments"}
	var userID, status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPayments(ctx, repo.PaymentFilters{UserID: userID, Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Task", "Amount", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.UserID, p.TaskID, p.Amount.String(), p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&userID, "user", "", "filter by user")
	listCmd.Flags().StringVar(&status, "status", "", "filter by status")
	listCmd.Flags().IntVar(&limit, "limit", 0, "max rows")

	var externalRef string
	completeCmd := &cobra.Command{
		Use:   "complete <payment-id>",
		Short: "Record a successful payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CompletePayment(ctx, args[0], externalRef, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Payment %s completed (%s)\n", p.ID, p.Amount.String())
				return nil
			})
		},
	}
	completeCmd.Flags().StringVar(&externalRef, "ref", "", "payout system reference")

	var failRef string
	failCmd := &cobra.Command{
		Use:   "fail <payment-id>",
		Short: "Record a failed payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.FailPayment(ctx, args[0], failRef, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Payment %s marked failed\n", p.ID)
				return nil
			})
		},
	}
	failCmd.Flags().StringVar(&failRef, "ref", "", "payout system failure reference")

	cmd.AddCommand(listCmd)
	cmd.AddCommand(completeCmd)
	cmd.AddCommand(failCmd)
	return cmd
}

func contributorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contributor", Short: "Manage contributors"}
	var displayName string
	registerCmd := &cobra.Command{
		Use:   "register <user-id>",
		Short: "Register a contributor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RegisterContributor(ctx, args[0], displayName)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	registerCmd.Flags().StringVar(&displayName, "name", "", "display name")
	showCmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a contributor profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetContributor(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	var level int
	levelCmd := &cobra.Command{
		Use:   "set-level <user-id>",
		Short: "Set a contributor's level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetContributorLevel(ctx, args[0], level)
			})
		},
	}
	levelCmd.Flags().IntVar(&level, "level", 1, "new level")
	var verify bool
	var limit int
	ledgerCmd := &cobra.Command{
		Use:   "ledger <user-id>",
		Short: "Show a contributor's transaction log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if verify {
					if err := e.VerifyLedger(ctx, args[0]); err != nil {
						return err
					}
					fmt.Println("ledger consistent")
				}
				items, err := e.Repo.ListLedgerEntries(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Amount", "Kind", "Task", "At"})
				for _, entry := range items {
					taskID := ""
					if entry.TaskID != nil {
						taskID = *entry.TaskID
					}
					tw.AppendRow(table.Row{entry.ID, entry.Amount.String(), entry.Kind, taskID, entry.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	ledgerCmd.Flags().BoolVar(&verify, "verify", false, "check the log sum against the balance")
	ledgerCmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	cmd.AddCommand(registerCmd)
	cmd.AddCommand(showCmd)
	cmd.AddCommand(levelCmd)
	cmd.AddCommand(ledgerCmd)
	return cmd
}

func thresholdCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "threshold", Short: "Tune the AI approval gate"}
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fallback := 70
				if e.Config != nil && e.Config.Review.AIConfidenceThreshold > 0 {
					fallback = e.Config.Review.AIConfidenceThreshold
				}
				fmt.Println(e.Repo.AIThreshold(ctx, fallback))
				return nil
			})
		},
	}
	var value int
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set the threshold; applies to the next scoring call",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SetReviewThreshold(ctx, value, viper.GetString("user-id"))
			})
		},
	}
	setCmd.Flags().IntVar(&value, "value", 70, "score required for an AI approval")
	cmd.AddCommand(getCmd)
	cmd.AddCommand(setCmd)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Audit log"}
	var limit int
	var evtType, entityKind, entityID string
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for i := len(items) - 1; i >= 0; i-- {
					e := items[i]
					fmt.Printf("%s %-22s %s/%s by %s %s\n", e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID, e.Payload)
				}
				return nil
			})
		},
	}
	tailCmd.Flags().IntVar(&limit, "limit", 20, "max events")
	tailCmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	tailCmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	tailCmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	cmd.AddCommand(tailCmd)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, viper.GetString("user-id"), name)
				if err != nil {
					return err
				}
				fmt.Printf("Key %s created. Store this now, it is shown once:\n%s\n", key.ID, raw)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "key label")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	deleteCmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAPIKey(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
	cmd.AddCommand(createCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(deleteCmd)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
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
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			e := engine.New(conn, cfg, logger)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("LUMENFORGE_JWT_SECRET"), Logger: logger}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("LUMENFORGE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Lumenforge API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	e := engine.New(conn, cfg, logger)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
