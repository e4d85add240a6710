package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/moodtape/internal/formatter"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchWorkers = 2
	MaxBatchWorkers     = 8
	ManifestFilename    = "manifest.json"
)

// BatchOpts contains configuration for batch recommendations.
type BatchOpts struct {
	Format     string  // Export format: json, csv, markdown, txt
	OutputDir  string  // Base output directory (default: moodtape_batch_{epoch})
	NumWorkers int     // Concurrent pipelines, 1 to 8 (default: 2)
	RateLimit  float64 // Intents started per second (default: 1)
}

// BatchJob is one named intent.
type BatchJob struct {
	Index  int
	Name   string
	Intent models.UserIntent
}

// BatchItemResult is the outcome of one job.
type BatchItemResult struct {
	Index      int      `json:"index"`
	Name       string   `json:"name"`
	RunID      string   `json:"run_id,omitempty"`
	Theme      string   `json:"theme,omitempty"`
	TrackCount int      `json:"track_count"`
	Files      []string `json:"files,omitempty"`
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
}

// BatchResult summarizes a batch and is written as the manifest.
type BatchResult struct {
	Total           int               `json:"total"`
	Succeeded       int               `json:"succeeded"`
	Failed          int               `json:"failed"`
	Format          string            `json:"format"`
	OutputDirectory string            `json:"output_directory"`
	ManifestPath    string            `json:"-"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Results         []BatchItemResult `json:"results"`
}

type batchFile struct {
	Intents []batchEntry `toml:"intent"`
}

type batchEntry struct {
	Name string `toml:"name"`
	models.UserIntent
}

// LoadBatchFile reads [[intent]] tables from a TOML file. Each table holds the intent fields plus an
// optional name.
func LoadBatchFile(path string) ([]BatchJob, error) {
	var f batchFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	if len(f.Intents) == 0 {
		return nil, fmt.Errorf("%w: %s has no [[intent]] entries", shared.ErrInvalidInput, path)
	}

	jobs := make([]BatchJob, len(f.Intents))
	for i, e := range f.Intents {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = fmt.Sprintf("intent-%d", i+1)
		}
		jobs[i] = BatchJob{Index: i, Name: name, Intent: e.UserIntent}
	}
	return jobs, nil
}

// Batch runs many intents through the pipeline concurrently with rate limiting and writes one export per
// success plus a manifest.
//
// Failed intents are reported in the result and the manifest; they do not stop the batch. Only setup and
// manifest failures are returned as errors.
func (p *Pipeline) Batch(ctx context.Context, progress chan<- ProgressUpdate, jobs []BatchJob, opts BatchOpts) (*BatchResult, error) {
	format, err := formatter.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("moodtape_batch_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultBatchWorkers
	}
	if opts.NumWorkers > MaxBatchWorkers {
		opts.NumWorkers = MaxBatchWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BatchResult{
		Total:           len(jobs),
		Format:          format,
		OutputDirectory: opts.OutputDir,
		StartedAt:       time.Now().UTC(),
		Results:         make([]BatchItemResult, 0, len(jobs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	queue := make(chan BatchJob, len(jobs))
	results := make(chan BatchItemResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go p.batchWorker(ctx, &wg, queue, results, format, opts.OutputDir)
	}

	go func() {
		defer close(queue)
		sendProgress(progress, batchStartedUpdate(len(jobs)))
		for _, job := range jobs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			queue <- job
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.Succeeded++
			sendProgress(progress, batchCompletedUpdate(completed, len(jobs), res.Name, res.TrackCount))
		} else {
			result.Failed++
			sendProgress(progress, batchFailedUpdate(completed, len(jobs), res.Name, fmt.Errorf("%s", res.Error)))
		}
	}

	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].Index < result.Results[j].Index
	})
	result.FinishedAt = time.Now().UTC()

	manifestPath := filepath.Join(opts.OutputDir, ManifestFilename)
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("batch completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// batchWorker runs jobs from the queue until it is closed or ctx ends.
func (p *Pipeline) batchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan BatchJob,
	results chan<- BatchItemResult,
	format, outputDir string,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results <- p.runBatchJob(ctx, job, format, outputDir)
	}
}

func (p *Pipeline) runBatchJob(ctx context.Context, job BatchJob, format, outputDir string) BatchItemResult {
	item := BatchItemResult{Index: job.Index, Name: job.Name}

	res, err := p.Recommend(ctx, job.Intent, nil)
	if err != nil {
		item.Error = shared.UserMessage(err)
		p.logger.Warn("batch intent failed", "name", job.Name, "error", err)
		return item
	}

	item.RunID = res.RunID
	item.Theme = res.Strategy.PlaylistTheme
	item.TrackCount = len(res.Tracks)

	path := filepath.Join(outputDir, fmt.Sprintf("%02d-%s", job.Index+1, formatter.Filename(job.Name, format)))
	if err := formatter.WriteExport(path, format, res.Strategy, res.Tracks); err != nil {
		item.Error = err.Error()
		return item
	}

	item.Files = []string{path}
	item.Success = true
	return item
}
