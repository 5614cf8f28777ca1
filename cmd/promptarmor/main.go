package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NeuralTrust/PromptArmor/pkg/app/guard"
	"github.com/NeuralTrust/PromptArmor/pkg/config"
	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/auth/google"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/httpx"
	infraLogger "github.com/NeuralTrust/PromptArmor/pkg/infra/logger"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/modelarmor"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/prometheus"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/factory"
	"github.com/NeuralTrust/PromptArmor/pkg/version"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	exitAllowed = 0
	exitError   = 1
	exitBlocked = 2
)

// exitCodeError carries a process exit code through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitAllowed
	}

	var codeErr *exitCodeError
	if errors.As(err, &codeErr) {
		if codeErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", codeErr.err)
		}
		return codeErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "promptarmor [prompt]",
		Short: "Screen a prompt with Model Armor before sending it to an LLM",
		Long: `Sends the prompt to a Google Cloud Model Armor template, prints the
per-filter verdict and forwards the prompt to the configured model only when
no filter matched.

Exit status is 0 when the prompt was allowed and answered, 2 when it was
blocked and 1 on any error.

Example:
  promptarmor --config ./config "What is the capital of France?"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuard(cmd, args, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.Flags().StringP("config", "c", "", "Directory containing config.yaml")
	rootCmd.Flags().String("env-file", "", "Dotenv file to load (defaults to $ENV_FILE or .env)")
	rootCmd.Flags().StringP("prompt", "p", "", "Prompt to screen (overrides config)")
	rootCmd.Flags().String("provider", "", "Generation provider (vertex, gemini, openai, anthropic, bedrock, azure)")
	rootCmd.Flags().StringP("model", "m", "", "Generation model")
	rootCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(newVersionCmd(stdout))
	return rootCmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, version.GetInfo().String())
		},
	}
}

func loadEnvFile(path string) {
	if path == "" {
		path = os.Getenv("ENV_FILE")
	}
	if path == "" {
		path = ".env"
	}
	// Missing dotenv files are expected; the process environment still applies.
	_ = godotenv.Load(path)
}

func runGuard(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	loadEnvFile(envFile)

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Prompt = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return safety.ErrEmptyPrompt
	}

	logger, closeLogs, err := infraLogger.NewLogger(cfg.Log.Level, cfg.Log.File, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLogs(); err != nil {
			fmt.Fprintf(stderr, "failed to close log file: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := buildRunner(cfg, logger, stdout)
	if err != nil {
		return err
	}

	metrics := runner.metrics
	outcome, runErr := runner.Run(ctx, cfg.Prompt)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.WithError(err).Warn("failed to write metrics textfile")
		}
	}

	return exitFor(outcome, runErr)
}

// exitFor maps a run result onto the process exit status.
func exitFor(outcome *guard.Outcome, err error) error {
	if err != nil {
		return &exitCodeError{code: exitError, err: err}
	}
	if outcome != nil && outcome.State == guard.StateBlocked {
		return &exitCodeError{code: exitBlocked}
	}
	return nil
}

type wiredRunner struct {
	guard.Runner
	metrics *prometheus.Metrics
}

func buildRunner(cfg *config.Config, logger *logrus.Logger, stdout io.Writer) (*wiredRunner, error) {
	creds, err := google.DetectCredentials()
	if err != nil {
		return nil, err
	}
	tokens := google.NewTokenProvider(
		creds,
		logger,
		google.WithCache(cfg.Auth.CacheTokens),
		google.WithExpirySkew(cfg.Auth.ExpirySkew),
	)

	httpClient := httpx.NewFastHTTPClient(
		httpx.WithTimeout(cfg.HTTP.Timeout),
		httpx.WithMaxConnsPerHost(cfg.HTTP.MaxConnsPerHost),
		httpx.WithUserAgent(version.UserAgent()),
	)
	breaker := httpx.NewCircuitBreaker(
		"model-armor",
		cfg.Breaker.Timeout,
		cfg.Breaker.MaxFailures,
		httpx.WithSuccessPredicate(modelarmor.IsBreakerSuccess),
		httpx.WithStateChangeLogger(logger),
	)

	classifierOpts := []modelarmor.ModelArmorClientOption{
		modelarmor.WithHTTPClient(httpClient),
		modelarmor.WithCircuitBreaker(breaker),
	}
	if cfg.ModelArmor.Endpoint != "" {
		classifierOpts = append(classifierOpts, modelarmor.WithEndpoint(cfg.ModelArmor.Endpoint))
	}
	classifier := modelarmor.NewModelArmorClient(tokens, logger, classifierOpts...)

	generator, err := factory.NewProviderLocator(creds).Get(cfg.Generation.Provider)
	if err != nil {
		return nil, err
	}

	metrics := prometheus.NewMetrics()
	runner := guard.NewRunner(classifier, generator, settingsFrom(cfg), stdout, logger, metrics)
	return &wiredRunner{Runner: runner, metrics: metrics}, nil
}

func settingsFrom(cfg *config.Config) guard.Settings {
	creds := providers.Credentials{ApiKey: cfg.Generation.APIKey}
	if cfg.Generation.Provider == providers.ProviderAzure {
		creds.Azure = &providers.AzureCredentials{
			Endpoint:    cfg.Generation.AzureEndpoint,
			UseIdentity: cfg.Generation.UseIdentity,
			ApiVersion:  cfg.Generation.AzureAPIVersion,
		}
	}
	return guard.Settings{
		Template: cfg.Template(),
		Generation: providers.Config{
			Provider:    cfg.Generation.Provider,
			Credentials: creds,
			Model:       cfg.Generation.Model,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			BaseURL:     cfg.Generation.BaseURL,
			Project:     cfg.Generation.Project,
			Location:    cfg.Generation.Location,
			Region:      cfg.Generation.AWSRegion,
		},
		GenerationTimeout: cfg.HTTP.Timeout,
	}
}

