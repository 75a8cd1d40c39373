// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package instrument wraps agent workers with execution recording.
//
// The wrapper is transparent: the worker's input, output, and error pass
// through unchanged, and a recording failure never fails the invocation.
// Capture depth follows the configured level — full redacted snapshots at
// debug, shape summaries at info, timing only above that.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flightrec/flightrec/internal/config"
	"github.com/flightrec/flightrec/internal/log"
	"github.com/flightrec/flightrec/internal/record"
	"github.com/flightrec/flightrec/internal/redact"
)

const tracerName = "github.com/flightrec/flightrec/internal/instrument"

// Worker is one agent in a pipeline: it consumes a state map and produces an
// updated state map.
type Worker interface {
	Name() string
	Run(ctx context.Context, input map[string]any) (map[string]any, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc struct {
	WorkerName string
	Fn         func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (w WorkerFunc) Name() string { return w.WorkerName }

func (w WorkerFunc) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	return w.Fn(ctx, input)
}

// Sink receives finished records. *writer.Writer satisfies this.
type Sink interface {
	Enqueue(rec *record.Record) error
}

// Instrumenter wraps workers with recording according to one configuration.
type Instrumenter struct {
	cfg      *config.Config
	sink     Sink
	redactor *redact.Redactor
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures an Instrumenter.
type Option func(*Instrumenter)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(i *Instrumenter) { i.tracer = tp.Tracer(tracerName) }
}

// New creates an Instrumenter. sink may be nil when file persistence is
// disabled.
func New(cfg *config.Config, sink Sink, logger *slog.Logger, opts ...Option) *Instrumenter {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Instrumenter{
		cfg:      cfg,
		sink:     sink,
		redactor: redact.New(redact.Mode(cfg.Redaction)),
		logger:   log.WithComponent(logger, "instrument"),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Wrap returns a Worker that records each invocation of w. When both file
// and console capture are disabled the worker is returned unwrapped, so a
// fully disabled recorder has zero overhead.
func (i *Instrumenter) Wrap(w Worker) Worker {
	if !i.cfg.FileEnabled && !i.cfg.ConsoleEnabled {
		return w
	}
	return &instrumentedWorker{inner: w, inst: i}
}

type instrumentedWorker struct {
	inner Worker
	inst  *Instrumenter
}

func (iw *instrumentedWorker) Name() string { return iw.inner.Name() }

func (iw *instrumentedWorker) Run(ctx context.Context, input map[string]any) (output map[string]any, err error) {
	i := iw.inst
	sessionID := resolveSession(ctx, input)
	group, _ := ParallelGroupFrom(ctx)

	ctx, span := i.tracer.Start(ctx, iw.inner.Name(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("agent.name", iw.inner.Name()),
			attribute.String("session.id", sessionID),
		))
	defer span.End()

	rec := &record.Record{
		SessionID:     sessionID,
		AgentName:     iw.inner.Name(),
		StartTime:     time.Now().UTC(),
		ParallelGroup: group,
	}
	rec.InputSnapshot = i.captureSnapshot(input)

	defer func() {
		if p := recover(); p != nil {
			rec.EndTime = time.Now().UTC()
			rec.Status = record.StatusError
			rec.Error = &record.ErrorInfo{
				Kind:    "panic",
				Message: fmt.Sprintf("%v", p),
				Trace:   string(debug.Stack()),
			}
			span.SetStatus(codes.Error, rec.Error.Message)
			i.emit(rec)
			panic(p)
		}
	}()

	output, err = iw.inner.Run(ctx, input)

	rec.EndTime = time.Now().UTC()
	switch {
	case err == nil:
		rec.Status = record.StatusSuccess
		rec.OutputSnapshot = i.captureSnapshot(output)
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.DeadlineExceeded):
		rec.Status = record.StatusTimeout
		rec.Error = errorInfo(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		rec.Status = record.StatusError
		rec.Error = errorInfo(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	i.emit(rec)
	return output, err
}

// captureSnapshot applies the level policy to a state map: full redacted
// copy at debug, shape summary at info, nothing above.
func (i *Instrumenter) captureSnapshot(state map[string]any) map[string]any {
	switch i.cfg.Level {
	case config.LevelDebug:
		return i.redactor.RedactMap(state)
	case config.LevelInfo:
		return record.Summarize(state)
	default:
		return nil
	}
}

// emit finishes and persists a record. Recording is fire-and-forget: every
// failure path lands in the log, never in the caller's error.
func (i *Instrumenter) emit(rec *record.Record) {
	rec.ClampTimes()

	// At error level, successful invocations are not recorded at all.
	if i.cfg.Level == config.LevelError && !rec.Failed() {
		return
	}

	if i.cfg.ConsoleEnabled {
		i.console(rec)
	}

	if i.cfg.FileEnabled && i.sink != nil {
		if err := i.sink.Enqueue(rec); err != nil {
			i.logger.Warn("failed to enqueue record",
				log.SessionIDKey, rec.SessionID,
				log.AgentKey, rec.AgentName,
				"error", err)
		}
	}
}

func (i *Instrumenter) console(rec *record.Record) {
	attrs := []any{
		log.SessionIDKey, rec.SessionID,
		log.AgentKey, rec.AgentName,
		"status", rec.Status,
		log.DurationKey, rec.DurationMS,
	}
	if rec.ParallelGroup != "" {
		attrs = append(attrs, "parallel_group", rec.ParallelGroup)
	}
	if rec.Error != nil {
		attrs = append(attrs, "error", rec.Error.Message)
		i.logger.Error("agent finished", attrs...)
		return
	}
	i.logger.Info("agent finished", attrs...)
}

// resolveSession finds the session id: context first, then the conventional
// input key, then a generated id so the record is never orphaned silently.
func resolveSession(ctx context.Context, input map[string]any) string {
	if id, ok := SessionFrom(ctx); ok {
		return id
	}
	if id, ok := input["session_id"].(string); ok && id != "" {
		return id
	}
	return "untagged-" + uuid.NewString()
}

func errorInfo(err error) *record.ErrorInfo {
	return &record.ErrorInfo{
		Kind:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}
