package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"opportunity-engine/internal/config"
	"opportunity-engine/internal/service"
	"opportunity-engine/pkg/analyzer"
	"opportunity-engine/pkg/keyword"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/ratelimit"
)

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns environment variable as bool or default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns environment variable as duration or default
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL ERROR: analysis panic recovered: %v\n", r)
			os.Exit(1)
		}
	}()

	var (
		prospect    = flag.String("prospect", getEnvOrDefault("MOE_PROSPECT", ""), "Prospect domain to analyze (env: MOE_PROSPECT)")
		competitors = flag.String("competitors", getEnvOrDefault("MOE_COMPETITORS", ""), "Comma-separated competitor domains (env: MOE_COMPETITORS)")
		branded     = flag.String("branded", getEnvOrDefault("MOE_BRANDED_TERMS", ""), "Comma-separated branded terms (env: MOE_BRANDED_TERMS)")
		configPath  = flag.String("config", getEnvOrDefault("MOE_CONFIG", ""), "Configuration file path (env: MOE_CONFIG)")
		outputDir   = flag.String("output-dir", "", "Directory for report files (overrides export.output_dir)")
		databaseURL = flag.String("database-url", "", "PostgreSQL URL for the warehouse (overrides database.url)")
		timeout     = flag.Duration("timeout", getEnvDurationOrDefault("MOE_TIMEOUT", 0), "Optional upper bound for the whole analysis, 0 for none (env: MOE_TIMEOUT)")
		debug       = flag.Bool("debug", getEnvBoolOrDefault("DEBUG", false), "Enable debug logging (env: DEBUG)")
		help        = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	if strings.TrimSpace(*prospect) == "" {
		fmt.Println("ERROR: A prospect domain is required.")
		fmt.Println("Use -prospect flag or MOE_PROSPECT environment variable.")
		fmt.Println("")
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewManager().Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Logger.Level = "debug"
	}
	if *outputDir != "" {
		cfg.Export.OutputDir = *outputDir
	}
	if *databaseURL != "" {
		cfg.Database.URL = *databaseURL
	}
	logger.SetLogger(logger.New(cfg.Logger))

	log := logger.GetLogger().WithField("component", "main")
	if err := service.RequireCredential(cfg); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		fmt.Println("SECURITY WARNING: Never hardcode API keys in source code!")
		os.Exit(1)
	}

	ctx, cancel := analysisContext(context.Background(), *timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Interrupt received, cancelling analysis")
		cancel()
	}()

	outputs, err := service.OpenOutputs(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open outputs")
	}
	defer outputs.Close()

	runner, err := service.NewRunner(cfg, ratelimit.NewPool(), outputs.Options()...)
	if err != nil {
		log.WithError(err).Fatal("Failed to configure analysis")
	}
	defer runner.Shutdown(context.Background()) //nolint:errcheck

	req := service.AnalysisRequest{
		Prospect:     *prospect,
		Competitors:  splitList(*competitors),
		BrandedTerms: keyword.ParseTerms(*branded),
	}

	progress := logger.NewProgressReporter("Opportunity analysis")
	start := time.Now()

	result, err := runner.Analyze(ctx, req, progress.Report)
	if result == nil {
		log.WithError(err).Error("Analysis failed")
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		log.WithError(err).Warn("Analysis finished but some outputs failed")
	}

	printSummary(result, time.Since(start))
}

// analysisContext bounds the run only when timeout is positive; otherwise
// per-request timeouts and retry budgets are the only limits.
func analysisContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printSummary(result *analyzer.Result, duration time.Duration) {
	s := result.Summary
	fmt.Printf("\n=== Opportunity Analysis: %s ===\n", result.ProspectDomain)
	fmt.Printf("Analysis ID: %s\n", result.ID)
	fmt.Printf("Competitors: %s\n", strings.Join(result.CompetitorDomains, ", "))
	fmt.Printf("Total Keywords: %d\n", s.TotalKeywords)
	if s.AvgOpportunityScore != nil {
		fmt.Printf("Avg Opportunity Score: %.4f\n", *s.AvgOpportunityScore)
	} else {
		fmt.Printf("Avg Opportunity Score: n/a\n")
	}
	fmt.Printf("High Opportunity Keywords: %d\n", s.HighOpportunityKeywords)
	fmt.Printf("Branded Keywords: %d\n", s.BrandedKeywords)
	fmt.Printf("Total Traffic: %.0f\n", s.TotalTraffic)
	fmt.Printf("Duration: %s\n", duration.Round(time.Millisecond))

	if len(result.KeywordOverlap) > 0 {
		fmt.Printf("\n=== Keyword Overlap ===\n")
		for _, competitor := range result.CompetitorDomains {
			if o, ok := result.KeywordOverlap[competitor]; ok {
				fmt.Printf("%-30s %5d keywords  %6.2f%%\n", competitor, o.OverlapCount, o.OverlapPercentage)
			}
		}
	}

	fmt.Printf("\n=== Top Opportunities ===\n")
	for i, k := range result.TopOpportunities {
		fmt.Printf("%2d. %-40s %.4f  (%s, vol %d, pos %d)\n",
			i+1, k.Keyword, k.OpportunityScore, k.Domain, k.SearchVolume, k.Position)
	}
	fmt.Printf("\nCompetitive Gaps: %d keywords\n", len(result.CompetitiveGaps))
}

func printUsage() {
	fmt.Println("Market Opportunity Engine")
	fmt.Println("")
	fmt.Println("USAGE:")
	fmt.Println("    ./opportunity-engine -prospect <domain> [-competitors <a,b>] [OPTIONS]")
	fmt.Println("")
	fmt.Println("REQUIRED:")
	fmt.Println("    -prospect string       Prospect domain (env: MOE_PROSPECT)")
	fmt.Println("")
	fmt.Println("OPTIONS:")
	fmt.Println("    -competitors string    Comma-separated competitor domains (env: MOE_COMPETITORS)")
	fmt.Println("    -branded string        Comma-separated branded terms (env: MOE_BRANDED_TERMS)")
	fmt.Println("    -config string         YAML configuration file (env: MOE_CONFIG)")
	fmt.Println("    -output-dir string     Report directory (default: output)")
	fmt.Println("    -database-url string   PostgreSQL warehouse URL")
	fmt.Println("    -timeout duration      Optional analysis time limit (default: none, env: MOE_TIMEOUT)")
	fmt.Println("    -debug                 Enable debug logging (env: DEBUG)")
	fmt.Println("    -help                  Show this help message")
	fmt.Println("")
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("    SE_RANKING_API_KEY     Provider credential (also MOE_PROVIDER_API_KEY)")
	fmt.Println("    MOE_PROVIDER_REGION    Provider region (us)")
	fmt.Println("    MOE_PROVIDER_STRATEGY  direct or project (direct)")
	fmt.Println("    MOE_EXPORT_BACKEND     fs or gcs (fs)")
	fmt.Println("    MOE_EXPORT_BUCKET      GCS bucket when backend is gcs")
	fmt.Println("    MOE_DATABASE_URL       PostgreSQL warehouse URL")
	fmt.Println("")
	fmt.Println("EXAMPLES:")
	fmt.Println("    export SE_RANKING_API_KEY=...")
	fmt.Println("    ./opportunity-engine -prospect example.com -competitors rival.com,other.com")
	fmt.Println("    ./opportunity-engine -prospect example.com -branded example,exmpl -output-dir reports")
}
