// Command debts records household debts and payments and prints the
// results as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"debts/internal/backend"
	"debts/internal/cli"
	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/services"
)

// Exit codes by error kind.
const (
	exitOK           = 0
	exitInternal     = 1
	exitUsage        = 2
	exitNotFound     = 3
	exitForbidden    = 4
	exitBusinessRule = 5
	exitCalculation  = 6
	exitStorage      = 7
)

type session struct {
	svc         *services.DebtService
	householdID string
	userID      string
}

type command struct {
	usage string
	run   func(ctx context.Context, s session, args []string) (any, error)
}

var commands = map[string]command{
	"create":   {"create a debt", runCreate},
	"show":     {"show a debt with its payments", runShow},
	"list":     {"list the household's debts", runList},
	"update":   {"update a debt", runUpdate},
	"delete":   {"delete a debt and its payments", runDelete},
	"pay":      {"record a payment", runPay},
	"schedule": {"print the payment schedule of a debt", runSchedule},
	"summary":  {"print the household summary", runSummary},
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	fs := flag.NewFlagSet("debts", flag.ContinueOnError)
	fs.SetOutput(stderr)
	household := fs.String("household", os.Getenv("DEBTS_HOUSEHOLD_ID"), "household id")
	user := fs.String("user", os.Getenv("DEBTS_USER_ID"), "acting user id, recorded on create")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(fs)
		return exitUsage
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		usage(fs)
		return exitUsage
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI, stderr)

	ctx, stop := cli.GracefulShutdown(ctx, logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	result, err := backend.NewFactory(logger, nil).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		return exitStorage
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err.Error())
		}
	}()

	s := session{svc: result.Service, householdID: *household, userID: *user}
	out, err := cmd.run(ctx, s, fs.Args()[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		writeError(stderr, err)
		return exitCode(err)
	}
	if out == nil {
		return exitOK
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitInternal
	}
	return exitOK
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: debts [-household id] [-user id] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

type errorBody struct {
	Kind    core.ErrorKind `json:"kind"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Rule    string         `json:"rule,omitempty"`
}

func writeError(w io.Writer, err error) {
	body := errorBody{Kind: core.KindOf(err), Message: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field, body.Rule = ve.Field, ve.Rule
	}
	if body.Kind == core.KindInternal {
		body.Message = "internal error"
	}
	_ = json.NewEncoder(w).Encode(map[string]errorBody{"error": body})
}

func exitCode(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return exitUsage
	case core.KindNotFound:
		return exitNotFound
	case core.KindForbidden:
		return exitForbidden
	case core.KindBusinessRule:
		return exitBusinessRule
	case core.KindCalculation:
		return exitCalculation
	case core.KindStorage:
		return exitStorage
	default:
		return exitInternal
	}
}
