package config

import (
	"errors"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/vitebski/csv-table-loader/pkg/models"
	"github.com/yourbasic/graph"
	"gopkg.in/yaml.v3"
)

// Manifest lists several CSV files to load in one session
type Manifest struct {
	Server string        `yaml:"server"`
	Jobs   []ManifestJob `yaml:"jobs"`
}

// ManifestJob is one entry of a manifest
type ManifestJob struct {
	Name       string   `yaml:"name"`
	CSV        string   `yaml:"csv"`
	Schema     string   `yaml:"schema"`
	Table      string   `yaml:"table"`
	BatchSize  int      `yaml:"batch_size"`
	Delimiter  string   `yaml:"delimiter"`
	Encoding   string   `yaml:"encoding"`
	NullValues []string `yaml:"null_values"`
	SampleSize int      `yaml:"sample_size"`
	DependsOn  []string `yaml:"depends_on"`
}

// LoadManifest reads and validates a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewConfigError("manifest file %s not found", path)
		}
		return nil, models.NewConfigError("read manifest file %s: %w", path, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, models.NewConfigError("error parsing the YAML file %s: %w", path, err)
	}

	if len(manifest.Jobs) == 0 {
		return nil, models.NewConfigError("manifest %s has no jobs", path)
	}

	manifest.Server = expandEnv(manifest.Server)
	seen := make(map[string]bool)
	for i := range manifest.Jobs {
		job := &manifest.Jobs[i]
		job.CSV = expandEnv(job.CSV)
		job.Schema = expandEnv(job.Schema)
		job.Table = expandEnv(job.Table)
		if job.Table == "" {
			return nil, models.NewConfigError("manifest job %d: table is required", i+1)
		}
		if job.CSV == "" {
			return nil, models.NewConfigError("manifest job %q: csv is required", job.Table)
		}
		if job.Name == "" {
			job.Name = job.Table
		}
		if seen[job.Name] {
			return nil, models.NewConfigError("manifest job %q is defined more than once", job.Name)
		}
		seen[job.Name] = true
		if utf8.RuneCountInString(job.Delimiter) > 1 {
			return nil, models.NewConfigError("manifest job %q: delimiter must be a single character", job.Name)
		}
	}

	return &manifest, nil
}

// Ordered returns the manifest jobs so that every job follows its dependencies
func (m *Manifest) Ordered() ([]models.LoadJob, error) {
	index := make(map[string]int, len(m.Jobs))
	for i, job := range m.Jobs {
		index[job.Name] = i
	}

	g := graph.New(len(m.Jobs))
	for i, job := range m.Jobs {
		for _, dep := range job.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, models.NewConfigError("manifest job %q depends on unknown job %q", job.Name, dep)
			}
			if j == i {
				return nil, models.NewConfigError("manifest job %q depends on itself", job.Name)
			}
			g.Add(j, i)
		}
	}

	order, ok := graph.TopSort(g)
	if !ok {
		var cyclic []string
		for _, component := range graph.StrongComponents(g) {
			if len(component) > 1 {
				for _, v := range component {
					cyclic = append(cyclic, m.Jobs[v].Name)
				}
			}
		}
		return nil, models.NewConfigError("manifest has circular dependencies: %s", strings.Join(cyclic, ", "))
	}

	jobs := make([]models.LoadJob, 0, len(order))
	for _, v := range order {
		jobs = append(jobs, m.Jobs[v].LoadJob())
	}
	return jobs, nil
}

// LoadJob converts a manifest entry to a load job
func (j ManifestJob) LoadJob() models.LoadJob {
	job := models.LoadJob{
		Name:       j.Name,
		CSVPath:    j.CSV,
		Schema:     j.Schema,
		Table:      j.Table,
		BatchSize:  j.BatchSize,
		Encoding:   j.Encoding,
		NullValues: j.NullValues,
		SampleSize: j.SampleSize,
		DependsOn:  j.DependsOn,
	}
	if j.Delimiter != "" {
		job.Delimiter, _ = utf8.DecodeRuneInString(j.Delimiter)
	}
	return job
}
