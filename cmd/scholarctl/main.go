package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/app"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/migrations"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/database"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/logger"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// session holds what every subcommand shares once the root has run.
type session struct {
	operator string
	cfg      *config.Config
	log      *zap.Logger
	out      io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command tree and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{out: stdout}
	root := newRootCommand(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "Error:", err)
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func newRootCommand(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:           "scholarctl",
		Short:         "Operate the scholarship portal from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return codeError(3, "load config: %s", err)
			}
			l, err := logger.New(cfg)
			if err != nil {
				return codeError(3, "init logger: %s", err)
			}
			s.cfg, s.log = cfg, l
			return nil
		},
	}
	root.PersistentFlags().StringVar(&s.operator, "operator", "", "User ID the action is performed as")

	root.AddCommand(newMigrateCommand(s), newFundCommand(s), newStipendCommand(s), newEligibilityCommand(s))
	return root
}

func newMigrateCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, s.cfg.Database)
			if err != nil {
				return codeError(2, "%s", err)
			}
			defer db.Close()
			applied, err := database.Migrate(ctx, db, migrations.FS)
			if err != nil {
				return codeError(2, "%s", err)
			}
			return s.print(map[string]interface{}{"applied": applied})
		},
	}
}

// withContainer builds the service graph, resolves the operator and runs fn.
func (s *session) withContainer(ctx context.Context, fn func(c *app.Container, actor *models.Actor) error) error {
	if s.operator == "" {
		return codeError(3, "--operator is required")
	}
	c, err := app.Build(ctx, s.cfg, s.log)
	if err != nil {
		return codeError(2, "%s", err)
	}
	c.Start(ctx)
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			s.log.Warn("cleanup incomplete", zap.Error(err))
		}
	}()

	user, err := c.Repositories.Users.FindByID(ctx, s.operator)
	if err != nil {
		return codeError(3, "operator %s not found", s.operator)
	}
	if !user.Active {
		return codeError(3, "operator %s is inactive", s.operator)
	}
	if err := fn(c, &models.Actor{UserID: user.ID, Role: user.Role}); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return codeError(1, "%s: %s", appErr.Code, appErr.Message)
		}
		return err
	}
	return nil
}

func (s *session) print(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
