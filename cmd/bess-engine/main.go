package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/bess-engine/internal/config"
	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/internal/natsrpc"
	"github.com/iwvelando/bess-engine/internal/optimizer"
	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/output"
	"github.com/iwvelando/bess-engine/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	requestLocation := flag.String("request", constants.DefaultRequestFile, "path to quote request file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	optimize := flag.Bool("optimize", false, "sweep storage durations and report the best NPV")
	natsURL := flag.String("nats-url", "", "request the quote from a remote engine over NATS")
	subjectPrefix := flag.String("subject-prefix", constants.DefaultSubjectPrefix, "NATS subject prefix")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline for the quote")
	flag.Parse()

	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	// Built-in defaults apply when the default config file is absent.
	configPath := *configLocation
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && configPath == constants.DefaultConfigFile {
		configPath = ""
	}

	conf, err := config.LoadConfiguration(configPath)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	req, err := config.LoadQuoteRequest(*requestLocation)
	if err != nil {
		logger.Fatal("failed to load quote request",
			zap.String("op", "main"),
			zap.String("path", *requestLocation),
			zap.Error(err),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var report output.Report
	if *natsURL != "" {
		report, err = remoteQuote(ctx, *natsURL, *subjectPrefix, req)
	} else {
		report, err = localQuote(ctx, logger, conf, req, *optimize || conf.Optimizer.Enabled)
	}
	if err != nil {
		logger.Fatal("failed to compute quote",
			zap.String("op", "main"),
			zap.Bool("invalid_input", engine.IsInvalidInput(err)),
			zap.Error(err),
		)
	}

	rv := validation.RequestValidator{
		Facility:             req.Facility,
		Equipment:            req.Equipment,
		Rates:                req.Rates,
		ProjectLifetimeYears: report.Quote.Financials.Input.ProjectLifetimeYears,
	}
	for _, warning := range rv.ValidateAll() {
		logger.Warn("Request warning: "+warning,
			zap.String("op", "main"),
		)
	}

	if err := output.Write(os.Stdout, outputFormat, report); err != nil {
		logger.Fatal("failed to write output",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}

func localQuote(ctx context.Context, logger *zap.Logger, conf *config.Configuration, req engine.QuoteRequest, optimize bool) (output.Report, error) {
	e, collab, err := conf.NewEngine(ctx, logger)
	if err != nil {
		return output.Report{}, err
	}
	defer collab.Close()

	if !optimize {
		quote, err := e.Quote(ctx, req)
		return output.Report{Quote: quote}, err
	}

	runner, err := optimizer.NewRunner(logger, e)
	if err != nil {
		return output.Report{}, err
	}
	result, err := runner.Run(ctx, req, conf.Optimizer.Durations)
	if err != nil {
		return output.Report{}, err
	}
	return output.Report{Quote: result.Best, Optimization: &result.Summary}, nil
}

func remoteQuote(ctx context.Context, url, prefix string, req engine.QuoteRequest) (output.Report, error) {
	conn, err := nats.Connect(url, nats.Name("bess-engine-cli"))
	if err != nil {
		return output.Report{}, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	quote, err := natsrpc.NewClient(conn, prefix).Quote(ctx, req)
	return output.Report{Quote: quote}, err
}
