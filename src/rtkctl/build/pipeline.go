package build

import (
	"context"
	"fmt"
	"time"
)

// Pipeline runs an ordered sequence of stages against a shared context.
// The first stage error aborts the run.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from the given stages, run in order.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// DefaultStages returns the full build pipeline for a kernel version.
func DefaultStages() []Stage {
	return []Stage{
		NewToolsStage(nil),
		NewFetchStage(nil, ""),
		NewConfigureStage(),
		NewCompileStage(),
		NewPackageStage(),
	}
}

// Run executes each stage in order. A stage is validated immediately
// before it runs, since later stages depend on the outputs of earlier
// ones. Progress from each stage is logged with the stage name attached.
func (p *Pipeline) Run(ctx context.Context, sc *StageContext) error {
	for _, stage := range p.stages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := stage.Validate(sc); err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		started := time.Now()
		log.Info("Stage starting", "stage", stage.Name())

		progress := func(percent int, message string) {
			log.Debug("Stage progress", "stage", stage.Name(), "percent", percent, "message", message)
		}

		if err := stage.Execute(ctx, sc, progress); err != nil {
			log.Error("Stage failed", "stage", stage.Name(), "duration", time.Since(started).Round(time.Second))
			return err
		}

		log.Info("Stage complete", "stage", stage.Name(), "duration", time.Since(started).Round(time.Second))
	}
	return nil
}
