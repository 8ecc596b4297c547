// Package modelstore loads versioned risk-model parameters from YAML and
// keeps the running model in sync with the file.
// 包 modelstore 从 YAML 加载版本化模型参数，并在文件变化时热更新。
package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 100 * time.Millisecond

// ParameterSink receives validated parameters. RiskModel implements it.
type ParameterSink interface {
	SetParameters(params *models.ModelParameters) error
}

// Load reads and validates a parameter file.
func Load(path string) (*models.ModelParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ErrInvalidModel(fmt.Sprintf("read %s", path)).WithCause(err)
	}
	return Decode(data)
}

// Decode parses and validates YAML parameters. Unknown keys are rejected.
func Decode(data []byte) (*models.ModelParameters, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var params models.ModelParameters
	if err := dec.Decode(&params); err != nil {
		return nil, errors.ErrInvalidModel("malformed yaml").WithCause(err)
	}
	if err := params.Validate(); err != nil {
		return nil, errors.ErrInvalidModel(err.Error())
	}
	return &params, nil
}

// Encode renders parameters as YAML.
func Encode(params *models.ModelParameters) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(params); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Watcher reloads a parameter file into a sink whenever it changes. Invalid
// files are logged and skipped; the sink keeps its last good parameters.
type Watcher struct {
	path    string
	sink    ParameterSink
	metrics service.Metrics
	logger  logger.Logger
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, sink ParameterSink, metrics service.Metrics, log logger.Logger) *Watcher {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &Watcher{
		path:    filepath.Clean(path),
		sink:    sink,
		metrics: metrics,
		logger:  log.WithComponent("ModelWatcher"),
	}
}

// Run blocks until ctx is cancelled. The parent directory is watched so that
// atomic rename-into-place updates are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info(ctx, "Watching model parameters", logger.String("path", w.path))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "Model watcher error", logger.Err(err))
		case <-pending:
			pending = nil
			w.Reload(ctx)
		}
	}
}

// Reload loads the file once and applies it. It reports whether the sink
// accepted new parameters.
func (w *Watcher) Reload(ctx context.Context) bool {
	params, err := Load(w.path)
	if err != nil {
		w.logger.Warn(ctx, "Ignoring invalid model parameters", logger.String("path", w.path), logger.Err(err))
		return false
	}
	if err := w.sink.SetParameters(params); err != nil {
		w.logger.Warn(ctx, "Model rejected parameters", logger.String("version", params.Version), logger.Err(err))
		return false
	}
	w.metrics.SetModelVersion(params.Version)
	w.logger.Info(ctx, "Model parameters reloaded", logger.String("version", params.Version))
	return true
}
