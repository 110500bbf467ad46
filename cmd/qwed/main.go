// qwed verifies answers instead of trusting them: a question goes through
// domain classification, LLM translation into a formal expression, then a
// deterministic engine that computes the truth. The model only translates;
// it never judges.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"qwed/internal/audit"
	"qwed/internal/cache"
	"qwed/internal/classify"
	"qwed/internal/compare"
	"qwed/internal/config"
	"qwed/internal/engine"
	"qwed/internal/logging"
	"qwed/internal/provider"
	"qwed/internal/translate"
	"qwed/internal/types"
	"qwed/internal/verify"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// verify flags
	candidateAnswer string
	domainHint      string

	// audit flags
	auditLimit int

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "qwed",
	Short: "qwed - deterministic verification router for untrusted answers",
	Long: `qwed routes natural-language questions to deterministic engines.

An LLM translates the question into a formal expression (arithmetic,
Datalog, SQL, a stats call), but the verdict comes from a deterministic
evaluator. The model is an untrusted translator, never a judge: same
question, same verdict, every time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = zapcore.DebugLevel.String()
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [question]",
	Short: "Verify a question, optionally against a candidate answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		router, cleanup, err := buildRouter(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		q := types.Query{
			Text:            args[0],
			CandidateAnswer: candidateAnswer,
			DomainHint:      types.Domain(domainHint),
		}
		verdict := router.Verify(ctx, q)

		out, err := verify.MarshalVerdict(verdict)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [question]",
	Short: "Show which domain a question routes to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := classify.Classify(types.Query{Text: args[0]})
		if err != nil {
			return err
		}
		fmt.Println(domain)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent verification audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		sink, err := audit.NewSQLiteSink(cfg.Audit.DatabasePath)
		if err != nil {
			return err
		}
		defer sink.Close()

		events, err := sink.Recent(auditLimit)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("%s  %-9s verified=%-5v cache=%-5v %6dms  %s %s\n",
				ev.At.Format(time.RFC3339), ev.Domain, ev.Verified, ev.CacheHit,
				ev.Latency.Milliseconds(), ev.QueryHash[:12], ev.Error)
		}
		return nil
	},
}

// buildRouter assembles the full pipeline from the loaded config.
func buildRouter(ctx context.Context) (*verify.Router, func(), error) {
	chain, err := provider.BuildChain(ctx, providerSpecs(cfg.Providers))
	if err != nil {
		return nil, nil, err
	}
	consensusChain := chain
	if len(cfg.ConsensusProviders) > 0 {
		consensusChain, err = provider.BuildChain(ctx, providerSpecs(cfg.ConsensusProviders))
		if err != nil {
			return nil, nil, err
		}
	}

	engCfg := engine.Config{
		Epsilon:     cfg.Engines.Epsilon,
		EvalTimeout: cfg.GetEvalTimeout(),
	}

	var store cache.Store
	if cfg.Cache.Backend == "sqlite" {
		store, err = cache.NewSQLiteStore(cfg.Cache.DatabasePath, cfg.GetCacheTTL())
		if err != nil {
			return nil, nil, err
		}
	} else {
		store = cache.NewMemoryStore(cfg.Cache.Capacity, cfg.GetCacheTTL(),
			cache.WithPolicy(cache.Policy(cfg.Cache.Policy)))
	}

	sink := audit.Sink(audit.NewLogSink(logging.Named(logger, "audit")))
	if cfg.Audit.Persist {
		dbSink, err := audit.NewSQLiteSink(cfg.Audit.DatabasePath)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		sink = audit.MultiSink{sink, dbSink}
	}

	router := verify.NewRouter(verify.Options{
		Translator: translate.New(chain, logging.Named(logger, "translate")),
		Engines:    engine.NewDefaultRegistry(engCfg, consensusChain),
		Comparator: compare.New(compare.Config{
			Epsilon:       cfg.Engines.Epsilon,
			FactThreshold: cfg.Engines.FactThreshold,
		}),
		Cache:  store,
		Audit:  sink,
		Logger: logging.Named(logger, "router"),
	})
	cleanup := func() {
		sink.Close()
		store.Close()
	}
	return router, cleanup, nil
}

func providerSpecs(configs []config.ProviderConfig) []provider.Spec {
	specs := make([]provider.Spec, 0, len(configs))
	for _, pc := range configs {
		specs = append(specs, provider.Spec{
			Kind:    pc.Kind,
			APIKey:  pc.APIKey,
			Model:   pc.Model,
			BaseURL: pc.BaseURL,
			Timeout: pc.GetProviderTimeout(),
		})
	}
	return specs
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "qwed.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	verifyCmd.Flags().StringVarP(&candidateAnswer, "answer", "a", "", "candidate answer to check")
	verifyCmd.Flags().StringVarP(&domainHint, "domain", "d", "", "force a domain instead of classifying")

	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "number of events to show")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
