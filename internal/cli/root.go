package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/logger"
	"github.com/upl-platform/exam-portal/internal/service"
	"golang.org/x/term"
)

// TokenEnv names the variable holding the student's bearer token.
const TokenEnv = "EXAM_TOKEN"

type options struct {
	backendURL string
	submitPath string
	timeout    time.Duration
	passMark   int
	logLevel   string

	in  io.Reader
	out io.Writer
	// readToken prompts for the token when TokenEnv is unset.
	readToken func() (string, error)
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{
		in:        os.Stdin,
		out:       os.Stdout,
		readToken: promptToken,
	}

	cmd := &cobra.Command{
		Use:           "exam-cli",
		Short:         "Take timed exams from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.backendURL, "backend", cfg.BackendURL, "exam backend base URL")
	cmd.PersistentFlags().StringVar(&opts.submitPath, "submit-path", cfg.SubmitPath, "result submission path")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", cfg.BackendTimeout, "per-request timeout, 0 for none")
	cmd.PersistentFlags().IntVar(&opts.passMark, "pass-mark", cfg.PassMark, "minimum passing score")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(newLobbyCmd(opts))
	cmd.AddCommand(newResultsCmd(opts))
	cmd.AddCommand(newTakeCmd(opts))
	return cmd
}

// promptToken reads the token without echoing it.
func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "Jeton d'accès : ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (o *options) token() (string, error) {
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		return tok, nil
	}
	tok, err := o.readToken()
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", errors.New("a bearer token is required")
	}
	return tok, nil
}

// connect builds an engine acting for the token's student against the exam
// backend. observer may be nil.
func (o *options) connect(ctx context.Context, observer func(engine.Event)) (*engine.Engine, *backend.Session, error) {
	tok, err := o.token()
	if err != nil {
		return nil, nil, err
	}
	claims, err := service.ParseUnverified(tok)
	if err != nil {
		return nil, nil, err
	}

	client, err := backend.NewClient(backend.Options{
		BaseURL:    o.backendURL,
		SubmitPath: o.submitPath,
		Timeout:    o.timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	session := client.ForToken(tok)

	log := logger.New(os.Stderr, o.logLevel, "pretty")
	eng := engine.New(ctx, engine.Options{
		Student:  claims.Student(),
		Sender:   session,
		Observer: observer,
		Logger:   &log,
	})
	return eng, session, nil
}

func closeEngine(eng *engine.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	eng.Close(ctx)
}
