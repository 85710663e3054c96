package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/prompt"
)

// ReportSuffix is appended to the output path for the run summary.
const ReportSuffix = ".report.json"

// persist saves the best prompt and the run summary next to it, then
// mirrors both when a mirror is configured.
func (l *Loop) persist(ctx context.Context, res *Result) error {
	if err := prompt.Save(l.opts.Output, res.Best.Text); err != nil {
		return fmt.Errorf("saving best prompt: %w", err)
	}
	res.Persisted = l.opts.Output

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling optimization report: %w", err)
	}
	if err := os.WriteFile(l.opts.Output+ReportSuffix, data, 0o644); err != nil {
		return fmt.Errorf("writing optimization report: %w", err)
	}
	l.log.Info("best prompt saved",
		zap.String("path", l.opts.Output),
		zap.String("fingerprint", prompt.Short(res.Best.Fingerprint)),
		zap.Float64("mean", res.Best.Mean()))

	if l.opts.Mirror != nil {
		if err := l.opts.Mirror.Upload(ctx, res.Best.Text, data); err != nil {
			l.log.Warn("mirroring best prompt", zap.Error(err))
		}
	}
	return nil
}
