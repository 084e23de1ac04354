package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/invitequeue/internal/adapter/http/dto"
	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/auth"
	"github.com/iho/invitequeue/internal/infrastructure/config"
	"github.com/iho/invitequeue/internal/infrastructure/logger"
	"github.com/iho/invitequeue/internal/infrastructure/postgres"
)

type rootOptions struct {
	baseURL string
	token   string
	timeout time.Duration
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.baseURL, o.token, o.timeout)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "invitequeue-cli",
		Short:         "InviteQueue CLI tool",
		Long:          `A command line interface for operating an InviteQueue server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the InviteQueue API")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("INVITEQUEUE_TOKEN"), "Admin bearer token (defaults to $INVITEQUEUE_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		queueCmd(opts),
		settlementsCmd(opts),
		settingsCmd(opts),
		usersCmd(opts),
		tokenCmd(),
		migrateCmd(),
	)

	return rootCmd
}

func queueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue operations",
	}

	var limit int
	head := &cobra.Command{
		Use:   "head",
		Short: "Show the batches next in line to sell",
		RunE: func(cmd *cobra.Command, args []string) error {
			var batches []dto.BatchResponse
			path := "/api/v1/admin/queue/head?limit=" + strconv.Itoa(limit)
			if err := opts.client().do(cmd.Context(), "GET", path, nil, &batches); err != nil {
				return err
			}
			printBatches(cmd.OutOrStdout(), batches)
			return nil
		},
	}
	head.Flags().IntVar(&limit, "limit", 10, "Number of batches to show")

	cmd.AddCommand(head)
	return cmd
}

func settlementsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "Settlement operations",
	}

	var pendingLimit int
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List transactions that still owe effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var txns []dto.TransactionResponse
			path := "/api/v1/admin/settlements/pending?limit=" + strconv.Itoa(pendingLimit)
			if err := opts.client().do(cmd.Context(), "GET", path, nil, &txns); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), txns)
		},
	}
	pending.Flags().IntVar(&pendingLimit, "limit", domain.DefaultPageSize, "Maximum transactions to list")

	var (
		reconcileLimit int
		paymentID      string
	)
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Resume owed effects now",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if paymentID != "" {
				q.Set("payment_id", paymentID)
			} else {
				q.Set("limit", strconv.Itoa(reconcileLimit))
			}

			var out json.RawMessage
			if err := opts.client().do(cmd.Context(), "POST", "/api/v1/admin/settlements/reconcile?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	reconcile.Flags().IntVar(&reconcileLimit, "limit", domain.DefaultPageSize, "Maximum transactions to sweep")
	reconcile.Flags().StringVar(&paymentID, "payment-id", "", "Resume only the transaction of this payment")

	cmd.AddCommand(pending, reconcile)
	return cmd
}

func settingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change runtime settings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			var settings []dto.SettingResponse
			if err := opts.client().do(cmd.Context(), "GET", "/api/v1/admin/settings", nil, &settings); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range settings {
				fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Value.String())
			}
			return w.Flush()
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}

			var out dto.SettingResponse
			path := "/api/v1/admin/settings/" + url.PathEscape(args[0])
			if err := opts.client().do(cmd.Context(), "PUT", path, dto.UpdateSettingRequest{Value: value}, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", out.Key, out.Value.String())
			return nil
		},
	}

	cmd.AddCommand(list, set)
	return cmd
}

func usersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User administration",
	}

	var req dto.RegisterUserRequest
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out dto.UserResponse
			if err := opts.client().do(cmd.Context(), "POST", "/api/v1/admin/users", req, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	register.Flags().StringVar(&req.Email, "email", "", "Email address")
	register.Flags().StringVar(&req.Role, "role", string(domain.RoleMember), "Role: admin or member")
	register.Flags().StringVar(&req.PayoutAccount, "payout-account", "", "External payout account reference")
	_ = register.MarkFlagRequired("email")

	cmd.AddCommand(register)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the server secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or $JWT_SECRET)")
			}
			r := domain.Role(role)
			if !r.IsValid() {
				return domain.ErrInvalidRole
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(userID, email, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to put in the subject")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "Role claim")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret (defaults to $JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations (uses DATABASE_URL and MIGRATIONS_PATH)",
	}

	migrator := func() (*postgres.Migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		l := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console"})
		return postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, l), nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Up()
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Down(steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func printBatches(w io.Writer, batches []dto.BatchResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tBATCH\tOWNER\tREMAINING\tOVERFLOW")
	for _, b := range batches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", b.QueuePosition, b.ID, truncate(b.OwnerID, 12), b.RemainingInvites, b.Overflow)
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
