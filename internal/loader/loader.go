package loader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/csv-table-loader/internal/connector"
	"github.com/vitebski/csv-table-loader/internal/csvreader"
	"github.com/vitebski/csv-table-loader/internal/inserter"
	"github.com/vitebski/csv-table-loader/internal/schema"
	"github.com/vitebski/csv-table-loader/pkg/models"
)

// Options controls how load jobs are executed
type Options struct {
	// DefaultBatchSize is used for jobs that do not set one.
	DefaultBatchSize int
	// MaxBatchSize caps the rows per transaction.
	MaxBatchSize int
	// DryRun stops after the CSV has been read and its structure inferred.
	DryRun bool
}

// Loader runs load jobs against one server profile
type Loader struct {
	Profile models.ServerProfile
	Options Options
	Logger  *logrus.Logger

	// connect opens the connection for a run; replaced in tests
	connect func(ctx context.Context, fn func(*connector.DatabaseConnector) error) error
}

// New creates a loader for the given profile
func New(profile models.ServerProfile, logger *logrus.Logger, opts Options) *Loader {
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = models.DefaultMaxBatchSize
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = models.DefaultMaxBatchSize
	}

	l := &Loader{
		Profile: profile,
		Options: opts,
		Logger:  logger,
	}
	l.connect = func(ctx context.Context, fn func(*connector.DatabaseConnector) error) error {
		return connector.WithConnection(ctx, l.Profile, l.Logger, fn)
	}
	return l
}

// Run executes a single load job on its own connection
func (l *Loader) Run(ctx context.Context, job models.LoadJob) (*models.LoadReport, error) {
	reports, err := l.RunAll(ctx, []models.LoadJob{job})
	if len(reports) == 0 {
		return nil, err
	}
	return reports[0], err
}

// RunAll executes jobs in order on a single connection and stops at the first failure.
// One report is returned for every job that was started.
func (l *Loader) RunAll(ctx context.Context, jobs []models.LoadJob) ([]*models.LoadReport, error) {
	var reports []*models.LoadReport
	if len(jobs) == 0 {
		return nil, nil
	}

	// Parse every file before touching the database
	datasets := make([]*models.Dataset, len(jobs))
	for i, job := range jobs {
		run := newJobRun(job, l.Logger)
		dataset, err := l.read(job)
		if err != nil {
			reports = append(reports, run.fail(err))
			return reports, err
		}
		run.report.Structure = dataset.Structure
		run.report.RowsRead = len(dataset.Rows)
		datasets[i] = dataset

		if l.Options.DryRun {
			reports = append(reports, run.report)
		}
	}

	if l.Options.DryRun {
		l.Logger.Info("Analyze-only mode, skipping database load")
		return reports, nil
	}

	var runErr error
	err := l.connect(ctx, func(db *connector.DatabaseConnector) error {
		for i, job := range jobs {
			run := newJobRun(job, l.Logger)
			run.report.Structure = datasets[i].Structure
			run.report.RowsRead = len(datasets[i].Rows)
			reports = append(reports, run.report)

			if err := l.load(ctx, db, run, datasets[i]); err != nil {
				runErr = err
				return err
			}
			// Free rows of finished jobs
			datasets[i] = nil
		}
		return nil
	})

	if err != nil && runErr == nil {
		// The connection itself failed, so only the first job is reported
		run := newJobRun(jobs[0], l.Logger)
		run.report.Structure = datasets[0].Structure
		run.report.RowsRead = len(datasets[0].Rows)
		reports = append(reports, run.fail(err))
	}
	return reports, err
}

func (l *Loader) read(job models.LoadJob) (*models.Dataset, error) {
	l.Logger.Infof("Reading CSV file %s", job.CSVPath)
	dataset, err := csvreader.ReadCSV(job.CSVPath, csvreader.Options{
		Delimiter:  job.Delimiter,
		Encoding:   job.Encoding,
		NullValues: job.NullValues,
		SampleSize: job.SampleSize,
	})
	if err != nil {
		l.Logger.Errorf("Failed to read %s: %v", job.CSVPath, err)
		return nil, err
	}
	l.Logger.Infof("Read %d rows with %d columns from %s", len(dataset.Rows), len(dataset.Structure), job.CSVPath)
	return dataset, nil
}

func (l *Loader) load(ctx context.Context, db *connector.DatabaseConnector, run *jobRun, dataset *models.Dataset) error {
	job := run.report.Job
	run.transition(models.StateConnected)

	schemaManager := schema.NewSchemaManager(db, l.Logger)
	target, err := schemaManager.PrepareTable(ctx, job.Schema, job.Table, dataset.Structure)
	if err != nil {
		run.fail(err)
		return err
	}
	run.transition(models.StateSchemaReady)

	batchSize := job.BatchSize
	if batchSize <= 0 {
		batchSize = l.Options.DefaultBatchSize
	}

	bulk := inserter.NewBulkInserter(db, l.Logger)
	bulk.MaxBatchSize = l.Options.MaxBatchSize

	run.transition(models.StateInserting)
	result, err := bulk.InsertRows(ctx, target, dataset.Rows, batchSize, job.Schema, job.Table)
	run.report.Result = result
	if err != nil {
		run.fail(err)
		return err
	}

	run.transition(models.StateDone)
	return nil
}

// jobRun tracks the state of one job
type jobRun struct {
	report  *models.LoadReport
	started time.Time
	logger  *logrus.Logger
}

func newJobRun(job models.LoadJob, logger *logrus.Logger) *jobRun {
	if job.Name == "" {
		job.Name = job.Table
	}
	return &jobRun{
		report:  &models.LoadReport{Job: job, State: models.StateIdle},
		started: time.Now(),
		logger:  logger,
	}
}

func (r *jobRun) transition(state models.LoadState) {
	r.logger.Debugf("Job %s: %s -> %s", r.report.Job.Name, r.report.State, state)
	r.report.State = state
	r.report.Duration = time.Since(r.started)
}

func (r *jobRun) fail(err error) *models.LoadReport {
	r.report.FailedStage = models.StageOf(err)
	r.report.Err = err
	r.transition(models.StateFailed)
	r.logger.Errorf("Job %s failed at %s stage: %v", r.report.Job.Name, r.report.FailedStage, err)
	return r.report
}
