package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
	"golang.org/x/time/rate"
)

// ManifestFile is written into the output directory of every bulk export.
const ManifestFile = "export_manifest.json"

// BulkExportOpts contains configuration for bulk history exports.
type BulkExportOpts struct {
	Format     formatter.Format // Export format (default: text)
	OutputDir  string           // Base output directory (default: crossplay_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 4, max: 10)
	RateLimit  float64          // Store reads per second (default: 5)
}

// RoomExportResult is the outcome for one room.
type RoomExportResult struct {
	RoomCode string `json:"roomCode"`
	Events   int    `json:"events"`
	File     string `json:"file,omitempty"`
	Success  bool   `json:"success"`
	Error    error  `json:"-"`
	Message  string `json:"error,omitempty"`
}

// BulkExportResult summarizes a bulk export.
type BulkExportResult struct {
	TotalRooms        int                `json:"totalRooms"`
	SuccessfulExports int                `json:"successfulExports"`
	FailedExports     int                `json:"failedExports"`
	Format            formatter.Format   `json:"format"`
	OutputDirectory   string             `json:"outputDirectory"`
	ManifestPath      string             `json:"-"`
	ExportedAt        time.Time          `json:"exportedAt"`
	Results           []RoomExportResult `json:"results"`
}

type historyJob struct {
	code    string
	history *formatter.History
}

// BulkExport writes the history of every room in codes to its own file, concurrently.
//
// Store reads are rate limited and happen on one goroutine; rendering and writing fan out to
// workers. A room that cannot be read or written is recorded as failed without stopping the
// others. A manifest summarizing the results is written last.
func (e *ArchiveEngine) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, codes []string, opts BulkExportOpts) (*BulkExportResult, error) {
	codes = uniqueCodes(codes)

	if opts.Format == "" {
		opts.Format = formatter.FormatText
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("crossplay_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalRooms:      len(codes),
		Format:          opts.Format,
		OutputDirectory: opts.OutputDir,
		ExportedAt:      time.Now().UTC(),
		Results:         make([]RoomExportResult, 0, len(codes)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan historyJob, len(codes))
	results := make(chan RoomExportResult, len(codes))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, code := range codes {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			e.sendProgress(prog, fetchingRoomUpdate(i+1, len(codes), code))
			h, err := e.History(ctx, code)
			if err != nil {
				results <- RoomExportResult{RoomCode: code, Error: fmt.Errorf("failed to fetch room: %w", err)}
				continue
			}
			jobs <- historyJob{code: code, history: h}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// results closes after the producer and every worker are done.
	completed := 0
	for res := range results {
		completed++
		if res.Error != nil {
			res.Message = res.Error.Error()
		}
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(codes), res))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(completed, len(codes), res.RoomCode, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("export interrupted: %w", err)
	}

	slices.SortFunc(result.Results, func(a, b RoomExportResult) int {
		return strings.Compare(a.RoomCode, b.RoomCode)
	})

	manifestPath := filepath.Join(opts.OutputDir, ManifestFile)
	if err := writeManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	e.logger.Info("bulk export finished", "rooms", len(codes), "ok", result.SuccessfulExports, "failed", result.FailedExports)
	return result, nil
}

// exportWorker renders and writes histories from the jobs channel.
func (e *ArchiveEngine) exportWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan historyJob, results chan<- RoomExportResult, opts BulkExportOpts) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- RoomExportResult{RoomCode: job.code, Error: ctx.Err()}
			continue
		default:
		}
		results <- e.exportSingleRoom(job, opts)
	}
}

func (e *ArchiveEngine) exportSingleRoom(j historyJob, opts BulkExportOpts) RoomExportResult {
	res := RoomExportResult{RoomCode: j.history.Room.RoomCode, Events: len(j.history.Events)}

	path := filepath.Join(opts.OutputDir, formatter.DefaultFilename(res.RoomCode, opts.Format))
	written, err := formatter.WriteExport(j.history, opts.Format, path)
	if err != nil {
		res.Error = err
		return res
	}

	res.File = written
	res.Success = true
	return res
}

func writeManifest(result *BulkExportResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func uniqueCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = models.NormalizeRoomCode(c)
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
