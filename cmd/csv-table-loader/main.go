package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/csv-table-loader/internal/config"
	"github.com/vitebski/csv-table-loader/internal/connector"
	"github.com/vitebski/csv-table-loader/internal/generator"
	"github.com/vitebski/csv-table-loader/internal/loader"
	"github.com/vitebski/csv-table-loader/internal/schema"
	"github.com/vitebski/csv-table-loader/internal/utils"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

// connectionFlags are shared by the root and manifest commands
type connectionFlags struct {
	configFile   string
	server       string
	requiredKeys []string
	batchSize    int
	envFile      string
	logLevel     string
	analyzeOnly  bool
	verify       bool
}

func (f *connectionFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.configFile, "config", "c", "dbconfig.yaml", "Path to the YAML file with server profiles")
	cmd.PersistentFlags().StringVarP(&f.server, "server", "s", "", "Server profile to use (default: $CSVLOADER_SERVER)")
	cmd.PersistentFlags().StringSliceVar(&f.requiredKeys, "required-keys", config.DefaultRequiredKeys, "Profile keys that must be present")
	cmd.PersistentFlags().IntVarP(&f.batchSize, "batch-size", "b", 0, "Rows per transaction (default: $CSVLOADER_BATCH_SIZE or 100000)")
	cmd.PersistentFlags().StringVarP(&f.envFile, "env-file", "e", ".env", "Path to .env file")
	cmd.PersistentFlags().StringVarP(&f.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&f.analyzeOnly, "analyze-only", "a", false, "Only read the CSV and print the inferred structure")
	cmd.PersistentFlags().BoolVarP(&f.verify, "verify", "v", false, "Verify the row counts of loaded tables")
}

func main() {
	var (
		flags      connectionFlags
		csvPath    string
		schemaName string
		tableName  string
		delimiter  string
		encoding   string
		nullValues []string
		sampleSize int
	)

	rootCmd := &cobra.Command{
		Use:   "csv-table-loader",
		Short: "Load CSV files into PostgreSQL or MySQL tables",
		Long: `CSV Table Loader

A Go tool that reads a CSV file, infers a column type for every header,
creates the target table if it does not exist and inserts the rows in
bounded batches, each committed in its own transaction.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			logger := setup(&flags)

			if csvPath == "" || tableName == "" {
				logger.Error("Both --csv and --table are required")
				os.Exit(1)
			}
			if utf8.RuneCountInString(delimiter) > 1 {
				logger.Errorf("Delimiter must be a single character, got %q", delimiter)
				os.Exit(1)
			}

			job := models.LoadJob{
				Name:       tableName,
				CSVPath:    csvPath,
				Schema:     schemaName,
				Table:      tableName,
				BatchSize:  flags.batchSize,
				Encoding:   encoding,
				NullValues: nullValues,
				SampleSize: sampleSize,
			}
			if delimiter != "" {
				job.Delimiter, _ = utf8.DecodeRuneInString(delimiter)
			}

			os.Exit(runJobs(&flags, flags.server, []models.LoadJob{job}, logger))
		},
	}

	flags.register(rootCmd)
	rootCmd.Flags().StringVarP(&csvPath, "csv", "f", "", "Path to the CSV file to load")
	rootCmd.Flags().StringVar(&schemaName, "schema", "", "Target schema (default: public for postgres, the database for mysql)")
	rootCmd.Flags().StringVarP(&tableName, "table", "t", "", "Target table name")
	rootCmd.Flags().StringVar(&delimiter, "delimiter", ",", "Field delimiter")
	rootCmd.Flags().StringVar(&encoding, "encoding", "utf-8", "File encoding (utf-8, latin-1, windows-1252)")
	rootCmd.Flags().StringSliceVar(&nullValues, "null-values", nil, "Cell values loaded as NULL")
	rootCmd.Flags().IntVar(&sampleSize, "sample-size", 0, "Rows used for the first type inference pass (0: all rows); later values may still widen a column")

	rootCmd.AddCommand(newManifestCmd(&flags), newSampleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newManifestCmd(flags *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <file>",
		Short: "Load every job of a manifest in dependency order",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := setup(flags)

			manifest, err := config.LoadManifest(args[0])
			if err != nil {
				logger.Errorf("Failed to load manifest: %v", err)
				os.Exit(1)
			}
			jobs, err := manifest.Ordered()
			if err != nil {
				logger.Errorf("Failed to order manifest jobs: %v", err)
				os.Exit(1)
			}

			names := make([]string, len(jobs))
			for i, job := range jobs {
				names[i] = job.Name
			}
			logger.Infof("Job order: %s", strings.Join(names, ", "))

			server := flags.server
			if server == "" {
				server = manifest.Server
			}
			os.Exit(runJobs(flags, server, jobs, logger))
		},
	}
}

func newSampleCmd() *cobra.Command {
	var (
		rows int
		out  string
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a CSV file with generated customer records",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			logger := utils.SetupLogging("")

			if out == "" || out == "-" {
				if err := generator.WriteSampleCSV(os.Stdout, rows, seed); err != nil {
					logger.Errorf("Failed to write sample CSV: %v", err)
					os.Exit(1)
				}
				return
			}

			if err := generator.WriteSampleFile(out, rows, seed); err != nil {
				logger.Errorf("Failed to write sample CSV: %v", err)
				os.Exit(1)
			}
			logger.Infof("Wrote %d rows to %s", rows, out)
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 1000, "Number of rows to generate")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	return cmd
}

func setup(flags *connectionFlags) *logrus.Logger {
	logger := utils.SetupLogging(flags.logLevel)
	utils.LoadEnvironmentVariables(flags.envFile, logger)

	// Logging may be configured in the .env file
	if flags.logLevel == "" {
		logger = utils.SetupLogging("")
	}
	if flags.batchSize == 0 {
		flags.batchSize = utils.GetEnvInt("CSVLOADER_BATCH_SIZE", models.DefaultMaxBatchSize)
	}
	return logger
}

// runJobs loads the jobs on the named profile and returns the process exit code
func runJobs(flags *connectionFlags, server string, jobs []models.LoadJob, logger *logrus.Logger) int {
	if server == "" {
		server = os.Getenv("CSVLOADER_SERVER")
	}

	var profile models.ServerProfile
	if !flags.analyzeOnly {
		if server == "" {
			logger.Error("A server profile is required, use --server or CSVLOADER_SERVER")
			return 1
		}
		p, err := config.LoadServerProfile(flags.configFile, server, flags.requiredKeys)
		if err != nil {
			logger.Errorf("Failed to load configuration: %v", err)
			return 1
		}
		profile = *p
		logger.Infof("Using server profile %s (%s)", profile.Name, profile.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := loader.New(profile, logger, loader.Options{
		DefaultBatchSize: flags.batchSize,
		DryRun:           flags.analyzeOnly,
	})

	reports, err := l.RunAll(ctx, jobs)

	if flags.analyzeOnly {
		for _, report := range reports {
			utils.PrintStructure(os.Stdout, report.Job.CSVPath, report.RowsRead, report.Structure)
		}
		if err != nil {
			return 1
		}
		return 0
	}

	utils.PrintSummary(os.Stdout, reports)

	verificationSuccess := true
	if flags.verify && len(reports) > 0 {
		verifyErr := connector.WithConnection(ctx, profile, logger, func(db *connector.DatabaseConnector) error {
			var unverified []string
			var shortTables map[string]int64
			verificationSuccess, unverified, shortTables = utils.VerifyRowCounts(ctx, schema.NewSchemaManager(db, logger), reports, logger)
			utils.PrintVerificationResults(os.Stdout, unverified, shortTables)
			return nil
		})
		if verifyErr != nil {
			logger.Errorf("Failed to verify row counts: %v", verifyErr)
			verificationSuccess = false
		}
	}

	if err != nil || !verificationSuccess {
		return 1
	}
	return 0
}
