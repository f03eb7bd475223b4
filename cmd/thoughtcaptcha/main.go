package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/thoughtcaptcha/internal/api"
	"github.com/pavelanni/thoughtcaptcha/internal/controller"
	appI18n "github.com/pavelanni/thoughtcaptcha/internal/i18n"
	"github.com/pavelanni/thoughtcaptcha/internal/model"
	"github.com/pavelanni/thoughtcaptcha/internal/qgen"
	"github.com/pavelanni/thoughtcaptcha/internal/server"
	"github.com/pavelanni/thoughtcaptcha/internal/store"
	"github.com/pavelanni/thoughtcaptcha/internal/view"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "thoughtcaptcha",
		Short: "Authorship verification for submitted written work",
	}

	submit := submitCmd()
	root.AddCommand(submit, teacherCmd(), serveCmd())

	// Make "submit" the default when no subcommand is given.
	root.RunE = submit.RunE

	// Register submit flags on root so bare `thoughtcaptcha --api-url ...` still works.
	root.Flags().AddFlagSet(submit.Flags())

	return root
}

// addClientFlags registers the flags every backend-talking command takes.
func addClientFlags(f *pflag.FlagSet) {
	f.String("api-url", "http://localhost:8000/api", "Backend API base URL")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit written work and answer the verification question",
		Long: `Submit written work and answer the follow-up verification question.

Type your submission and end it with a single "." on its own line.
Once the follow-up question appears, a countdown starts: type your
answer and press Enter before it reaches zero, or type /skip to
submit without answering. When the countdown runs out, whatever you
have typed so far is submitted as is.`,
		RunE: runSubmit,
	}
	f := cmd.Flags()
	addClientFlags(f)
	f.Duration("verification-timeout", 0, "Countdown window for the verification answer (default 60s)")
	return cmd
}

func teacherCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teacher",
		Short: "Review submissions and manage assignments",
	}

	submissions := &cobra.Command{
		Use:   "submissions",
		Short: "List all submissions as JSON",
		RunE:  runListSubmissions,
	}
	addClientFlags(submissions.Flags())
	addTeacherAuthFlags(submissions.Flags())

	prompt := &cobra.Command{
		Use:   "prompt [new prompt text]",
		Short: "Show or replace the question-generation system prompt",
		RunE:  runPrompt,
	}
	addClientFlags(prompt.Flags())
	addTeacherAuthFlags(prompt.Flags())

	assignments := &cobra.Command{
		Use:   "assignments",
		Short: "List assignments as JSON",
		RunE:  runListAssignments,
	}
	addClientFlags(assignments.Flags())
	addTeacherAuthFlags(assignments.Flags())

	add := &cobra.Command{
		Use:   "add <prompt text>",
		Short: "Create a new assignment",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddAssignment,
	}
	addClientFlags(add.Flags())
	addTeacherAuthFlags(add.Flags())
	add.Flags().Bool("current", false, "Make the new assignment the current one")

	setCurrent := &cobra.Command{
		Use:   "set-current <id>",
		Short: "Make an assignment the current one",
		Args:  cobra.ExactArgs(1),
		RunE:  runSetCurrentAssignment,
	}
	addClientFlags(setCurrent.Flags())
	addTeacherAuthFlags(setCurrent.Flags())

	assignments.AddCommand(add, setCurrent)
	cmd.AddCommand(submissions, prompt, assignments)
	return cmd
}

func addTeacherAuthFlags(f *pflag.FlagSet) {
	f.String("user", "teacher", "Basic auth username")
	f.String("password", "", "Basic auth password (or set THOUGHTCAPTCHA_PASSWORD)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a local backend server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "thoughtcaptcha.db", "SQLite database path")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty serves the built-in question)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("teacher-password", "", "Basic auth password for teacher endpoints (empty leaves them open)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("THOUGHTCAPTCHA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("thoughtcaptcha")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/thoughtcaptcha")
	v.AddConfigPath("/etc/thoughtcaptcha")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang))

	client := api.New(v.GetString("api-url"))
	term := view.NewTerminal(os.Stdout, ctx)

	finalized := make(chan bool, 1)
	ctrl := controller.New(term, client, controller.NewScheduler(),
		controller.Config{VerificationTimeout: v.GetDuration("verification-timeout")},
		controller.WithFinalizedHook(func(hadIssue bool) { finalized <- hadIssue }))

	ctrl.LoadAssignment(ctx)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		content, ok := readSubmission(lines)
		if !ok {
			return nil
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		if err := ctrl.Submit(ctx, content); err != nil {
			if errors.Is(err, controller.ErrCycleInFlight) {
				return err
			}
			// Failure status was already shown; the cycle is idle again.
			continue
		}

		if err := answerLoop(ctx, ctrl, term, lines, finalized); err != nil {
			return err
		}
		if ctrl.Phase() != model.PhaseIdle {
			// Stdin closed mid-cycle; wait for the scheduled finalize.
			<-finalized
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}
}

// answerLoop feeds typed lines into the verification flow until the
// current cycle finalizes or stdin closes.
func answerLoop(ctx context.Context, ctrl *controller.Controller, term *view.Terminal,
	lines <-chan string, finalized <-chan bool) error {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				ctrl.Dismiss(ctx)
				return nil
			}
			if ctrl.Phase() != model.PhaseAwaitingQuestion {
				continue
			}
			if strings.TrimSpace(line) == "/skip" {
				ctrl.Dismiss(ctx)
				continue
			}
			term.SetResponse(line)
			ctrl.Verify(ctx)
		case <-finalized:
			return nil
		case <-ctx.Done():
			ctrl.Dismiss(ctx)
			<-finalized
			return nil
		}
	}
}

// readSubmission collects lines until a lone "." terminator. An EOF with
// buffered content submits what was typed so far.
func readSubmission(lines <-chan string) (string, bool) {
	var b strings.Builder
	for line := range lines {
		if line == "." {
			return b.String(), true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String(), b.Len() > 0
}

func teacherClient(v *viper.Viper) *api.Client {
	var opts []api.Option
	if v.GetString("password") != "" {
		opts = append(opts, api.WithBasicAuth(v.GetString("user"), v.GetString("password")))
	}
	return api.New(v.GetString("api-url"), opts...)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runListSubmissions(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	subs, err := teacherClient(v).ListSubmissions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	return printJSON(subs)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	client := teacherClient(v)

	if len(args) == 0 {
		p, err := client.GetPrompt(cmd.Context())
		if err != nil {
			return fmt.Errorf("get prompt: %w", err)
		}
		fmt.Println(p.PromptText)
		return nil
	}

	p, err := client.UpdatePrompt(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	slog.Info("system prompt updated")
	fmt.Println(p.PromptText)
	return nil
}

func runListAssignments(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	as, err := teacherClient(v).ListAssignments(cmd.Context())
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	return printJSON(as)
}

func runAddAssignment(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := teacherClient(v).CreateAssignment(cmd.Context(), args[0], v.GetBool("current"))
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return printJSON(a)
}

func runSetCurrentAssignment(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parse assignment id %q: %w", args[0], err)
	}
	if err := teacherClient(v).SetCurrentAssignment(cmd.Context(), id); err != nil {
		return fmt.Errorf("set current assignment: %w", err)
	}
	slog.Info("current assignment updated", "id", id)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var gen server.Generator
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		qc := qgen.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"))
		if err := qc.Ping(cmd.Context()); err != nil {
			slog.Warn("LLM endpoint unreachable, requests will use the built-in question",
				"url", llmURL, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", llmURL, "model", v.GetString("llm-model"))
		}
		gen = qc
	}

	h, err := server.New(db, gen, v.GetString("teacher-password"))
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Route("/api", func(sub chi.Router) {
		h.Routes(sub)
	})

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"llm_url", v.GetString("llm-url"),
		"teacher_auth", v.GetString("teacher-password") != "",
	)
	return http.ListenAndServe(addr, r)
}
