package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/app"
	"github.com/hyperifyio/goanswer/internal/validate"
)

// Exit codes.
const (
	exitOK          = 0
	exitStreamError = 1
	exitSetupError  = 2
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var pdfPath string
	flags := app.BindFlags(flag.CommandLine)
	flag.StringVar(&pdfPath, "pdf", "", "Also write the answer and its sources to this PDF file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <query>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flags.Version {
		fmt.Println(app.VersionString("goanswer"))
		return
	}

	cfg, err := app.LoadConfig(flags.ConfigPath)
	if err != nil {
		log.Error().Err(err).Msg("config")
		os.Exit(exitSetupError)
	}
	flags.Apply(&cfg)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		flag.Usage()
		os.Exit(exitSetupError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, cfg, query, pdfPath, os.Stdout))
}

// run answers query, printing the numbered sources followed by the streamed
// answer. It returns the process exit code.
func run(ctx context.Context, cfg app.Config, query, pdfPath string, stdout io.Writer, opts ...app.Option) int {
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		log.Error().Err(err).Msg("init")
		return exitSetupError
	}
	defer a.Close()

	prep, err := a.Ask(ctx, query, cfg.LLMModel, cfg.LLMAPIKey)
	if err != nil {
		log.Error().Err(err).Msg("prepare")
		return exitSetupError
	}
	log.Debug().Str("model", prep.Tier.Model).Int("sources", len(prep.Sources)).Msg("prompt built")

	fmt.Fprintln(stdout, "Sources:")
	for i, s := range prep.Sources {
		fmt.Fprintf(stdout, "[%d] %s\n", i+1, s.URL)
	}
	fmt.Fprintln(stdout)

	stream, err := prep.Stream(ctx)
	if err != nil {
		log.Error().Err(err).Msg("completion request")
		return exitSetupError
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(stdout)
			log.Error().Err(err).Msg("answer stream")
			return exitStreamError
		}
		fmt.Fprint(stdout, chunk)
	}
	fmt.Fprintln(stdout)

	if cites := validate.CheckCitations(stream.Text(), len(prep.Sources)); !cites.OK() {
		log.Warn().Str("citations", cites.Summary()).Msg("answer cites sources incorrectly")
	}

	if pdfPath != "" {
		if err := app.WriteAnswerPDF(pdfPath, query, stream.Text(), prep.Sources); err != nil {
			log.Warn().Err(err).Str("path", pdfPath).Msg("pdf export failed")
		}
	}
	return exitOK
}
