package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// ParallelConfig holds configuration for processing several sequences at once.
type ParallelConfig struct {
	MaxWorkers      int              // number of sequences processed concurrently (0 = runtime.NumCPU())
	ContinueOnError bool             // keep going after a frame fails to load or process
	Progress        ProgressCallback // optional; called from worker goroutines
	ErrorHandler    func(seq int, frame int, err error)
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// FrameLoader produces one frame of a sequence on demand.
type FrameLoader func() (Frame, error)

// StaticFrame wraps an already decoded frame.
func StaticFrame(f Frame) FrameLoader {
	return func() (Frame, error) { return f, nil }
}

// Sequence is an ordered run of frames from one camera. All frames of a
// sequence share one session.
type Sequence struct {
	Name   string
	Frames []FrameLoader
}

// SequenceResult holds the per-frame results of one sequence.
type SequenceResult struct {
	Name      string         `json:"name" yaml:"name"`
	SessionID string         `json:"session_id" yaml:"session_id"`
	Frames    []*FrameResult `json:"frames" yaml:"frames"`
	Stats     SessionStats   `json:"stats" yaml:"stats"`
	Errors    []string       `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type sequenceJob struct {
	index int
	seq   Sequence
}

type sequenceResult struct {
	index  int
	result *SequenceResult
	err    error
}

// ProcessSequences runs every sequence through its own session using a
// worker pool. A sequence is handled by exactly one worker, frame by frame
// in order. Results are returned in input order together with the first
// error encountered.
func (p *Pipeline) ProcessSequences(ctx context.Context, seqs []Sequence, config ParallelConfig) ([]*SequenceResult, error) {
	if len(seqs) == 0 {
		return nil, errors.New("no sequences provided")
	}
	if p == nil || p.source == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	workers := min(config.MaxWorkers, len(seqs))

	total := 0
	for _, s := range seqs {
		total += len(s.Frames)
	}
	var done atomic.Int64
	if config.Progress != nil {
		config.Progress.OnStart(total)
		defer config.Progress.OnComplete()
	}
	slog.Debug("Processing sequences", "sequences", len(seqs), "frames", total, "workers", workers)

	jobs := make(chan sequenceJob, len(seqs))
	results := make(chan sequenceResult, len(seqs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := p.processSequence(ctx, job.index, job.seq, config, total, &done)
				select {
				case results <- sequenceResult{index: job.index, result: res, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, s := range seqs {
			select {
			case jobs <- sequenceJob{index: i, seq: s}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*SequenceResult, len(seqs))
	errs := make([]error, len(seqs))
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
	}

	if err := ctx.Err(); err != nil {
		return ordered, err
	}
	for i, err := range errs {
		if err != nil {
			return ordered, fmt.Errorf("sequence %d (%s): %w", i, seqs[i].Name, err)
		}
	}
	return ordered, nil
}

func (p *Pipeline) processSequence(
	ctx context.Context,
	index int,
	seq Sequence,
	config ParallelConfig,
	total int,
	done *atomic.Int64,
) (*SequenceResult, error) {
	sess := p.NewSession(seq.Name)
	out := &SequenceResult{
		Name:      seq.Name,
		SessionID: sess.ID,
		Frames:    make([]*FrameResult, 0, len(seq.Frames)),
	}
	defer func() { out.Stats = sess.Stats() }()

	var firstErr error
	for i, load := range seq.Frames {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := p.loadAndProcess(ctx, sess, load)
		n := int(done.Add(1))
		if err != nil {
			if config.ErrorHandler != nil {
				config.ErrorHandler(index, i, err)
			}
			if config.Progress != nil {
				config.Progress.OnError(n, err)
			}
			out.Errors = append(out.Errors, fmt.Sprintf("frame %d: %v", i, err))
			if firstErr == nil {
				firstErr = fmt.Errorf("frame %d: %w", i, err)
			}
			if !config.ContinueOnError || ctx.Err() != nil {
				return out, firstErr
			}
			continue
		}
		out.Frames = append(out.Frames, res)
		if config.Progress != nil {
			config.Progress.OnProgress(n, total)
		}
	}
	return out, firstErr
}

func (p *Pipeline) loadAndProcess(ctx context.Context, sess *Session, load FrameLoader) (*FrameResult, error) {
	if load == nil {
		return nil, errors.New("nil frame loader")
	}
	f, err := load()
	if err != nil {
		return nil, err
	}
	return sess.ProcessFrame(ctx, f)
}
