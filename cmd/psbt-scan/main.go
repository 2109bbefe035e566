// psbt-scan decodes, validates, and analyzes PSBT files and prints a
// human-readable summary, including a fee assessment against current
// mempool.space recommended rates.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/suffix-labs/psbt-scan/pkg/analysis"
	"github.com/suffix-labs/psbt-scan/pkg/api"
	"github.com/suffix-labs/psbt-scan/pkg/mempool"
	"github.com/suffix-labs/psbt-scan/pkg/psbt"
	"github.com/suffix-labs/psbt-scan/pkg/report"
)

const feeRateTimeout = 15 * time.Second

type options struct {
	Offline    bool     `long:"offline" description:"Skip the mempool fee rate lookup"`
	MempoolURL string   `long:"mempool-url" description:"Base URL of a mempool.space compatible API"`
	Combine    []string `long:"combine" description:"Additional PSBT file to merge into the main document (may be repeated)"`
	DebugLevel string   `short:"d" long:"debuglevel" default:"warn" description:"Logging level {trace, debug, info, warn, error, critical}"`

	Args struct {
		PsbtFile string `positional-arg-name:"psbt-file" description:"PSBT file, binary or hex encoded"`
	} `positional-args:"true" required:"true"`
}

var log = btclog.Disabled

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "psbt-scan: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil
		}
		os.Exit(1)
	}

	setupLogging(opts.DebugLevel)

	documents := make([][]byte, 0, 1+len(opts.Combine))
	for _, path := range append([]string{opts.Args.PsbtFile}, opts.Combine...) {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		documents = append(documents, data)
	}

	input := documents[0]
	if len(documents) > 1 {
		combined, err := api.Combine(documents)
		if err != nil {
			return fmt.Errorf("combining documents: %w", err)
		}
		log.Infof("Combined %d documents", len(documents))
		input = combined
	}

	_, res, err := api.DecodeAndAnalyze(input)
	if err != nil {
		return err
	}

	var rates *mempool.FeeRates
	if !opts.Offline {
		ctx, cancel := context.WithTimeout(context.Background(), feeRateTimeout)
		defer cancel()

		rates, err = mempool.NewClient(opts.MempoolURL).RecommendedFees(ctx)
		if err != nil {
			// The summary still renders without an assessment.
			log.Warnf("Fee rate lookup failed: %v", err)
			rates = nil
		}
	}

	report.WriteSummary(os.Stdout, res, rates)
	return nil
}

// setupLogging routes all subsystem loggers to stderr at the requested
// level, keeping stdout clean for the report itself.
func setupLogging(level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelWarn
	}

	backend := btclog.NewBackend(os.Stderr)
	newLogger := func(tag string) btclog.Logger {
		logger := backend.Logger(tag)
		logger.SetLevel(lvl)
		return logger
	}

	log = newLogger("SCAN")
	psbt.UseLogger(newLogger("PSBT"))
	analysis.UseLogger(newLogger("ANLY"))
}
