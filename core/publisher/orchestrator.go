package publisher

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geodatahub/geopublisher/core/infra/attempts"
	"github.com/geodatahub/geopublisher/core/infra/config"
	"github.com/geodatahub/geopublisher/core/infra/logging"
	"github.com/geodatahub/geopublisher/core/infra/metrics"
	"github.com/geodatahub/geopublisher/core/infra/objstore"
)

const component = "orchestrator"

// Options wires the orchestrator's collaborators. Store, Parser and
// Publisher are required; the rest default to in-process no-op behaviour.
type Options struct {
	Store     objstore.Store
	Parser    *RequestParser
	Publisher *GeoPublisher
	Catalog   Catalog
	Attempts  attempts.Store
	Metrics   metrics.Metrics
	Policy    *config.Policy
	Interval  time.Duration
}

// Orchestrator drives the scan-parse-publish-mark loop. One item at a time;
// a failing item is logged and left pending, never aborting the cycle.
type Orchestrator struct {
	store     objstore.Store
	scanner   *TriggerScanner
	parser    *RequestParser
	publisher *GeoPublisher
	catalog   Catalog
	attempts  attempts.Store
	metrics   metrics.Metrics
	policy    *config.Policy
	interval  time.Duration
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     opts.Store,
		scanner:   NewTriggerScanner(opts.Store),
		parser:    opts.Parser,
		publisher: opts.Publisher,
		catalog:   opts.Catalog,
		attempts:  opts.Attempts,
		metrics:   opts.Metrics,
		policy:    opts.Policy,
		interval:  opts.Interval,
	}
	if o.attempts == nil {
		o.attempts = attempts.NewMemoryStore()
	}
	if o.metrics == nil {
		o.metrics = metrics.Noop{}
	}
	if o.policy == nil {
		o.policy, _ = config.LoadPolicy("")
	}
	if o.interval <= 0 {
		o.interval = 30 * time.Second
	}
	return o
}

// Run executes cycles at the configured interval until ctx is cancelled.
// Cancellation stops the loop before the next scan; the in-flight item
// finishes.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info(component, "shutdown requested, stopping loop")
			return
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full scan over the bucket.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		o.metrics.ObserveCycleDuration(time.Since(start).Seconds())
	}()

	pending, err := o.scanner.Scan(ctx)
	if err != nil {
		logging.Error(component, "bucket scan failed", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	o.metrics.IncTriggersFound(len(pending))
	logging.Info(component, "scan cycle", "pending", len(pending))

	for _, key := range pending {
		if ctx.Err() != nil {
			return
		}
		o.processTrigger(ctx, key)
	}
}

// processTrigger handles one trigger end to end. Every outcome is terminal
// for this cycle: marked done, quarantined, dead-lettered, or left pending
// for the next scan.
func (o *Orchestrator) processTrigger(ctx context.Context, key string) {
	traceID := uuid.NewString()

	raw, err := o.store.Read(ctx, key)
	if err != nil {
		logging.Error(component, "trigger read failed", "trigger", key, "error", err, "trace_id", traceID)
		return
	}

	desc, err := o.parser.Parse(key, raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedRequest):
			o.metrics.IncPublishFailed("malformed_request")
			logging.Error(component, "malformed trigger", "trigger", key, "error", err, "trace_id", traceID)
			if o.policy.QuarantineMalformed {
				o.quarantine(ctx, key)
			}
		case errors.Is(err, ErrUnsupportedDataType):
			o.metrics.IncPublishFailed("unsupported_data_type")
			logging.Error(component, "unsupported data type", "trigger", key, "error", err, "trace_id", traceID)
			o.deadLetter(ctx, key, err, 0)
		case errors.Is(err, ErrDataNotFound):
			// The mirroring process may simply not have copied the file yet.
			logging.Warn(component, "data file not mirrored yet", "trigger", key, "error", err, "trace_id", traceID)
			o.noteFailure(ctx, key, err, "data_not_found")
		default:
			logging.Error(component, "trigger rejected", "trigger", key, "error", err, "trace_id", traceID)
			o.noteFailure(ctx, key, err, "rejected")
		}
		return
	}

	logging.Info(component, "publishing request",
		"trigger", key,
		"workspace", desc.Workspace,
		"store", desc.StoreName,
		"kind", string(desc.Kind),
		"trace_id", traceID,
	)

	layerName, err := o.publisher.Publish(ctx, desc)
	if err != nil {
		if errors.Is(err, ErrStoreConflict) {
			// The intended state exists on the server, likely from an
			// earlier attempt whose rename did not land. Mark done so the
			// trigger never loops.
			logging.Warn(component, "store already exists, treating as published",
				"trigger", key, "store", desc.StoreName, "trace_id", traceID)
			layerName = desc.LayerName()
		} else {
			o.noteFailure(ctx, key, err, failureReason(err))
			return
		}
	}

	o.metrics.IncPublished(string(desc.Kind))
	o.registerInCatalog(ctx, desc, layerName, traceID)
	o.markDone(ctx, desc, traceID)
}

// markDone renames the trigger to the done suffix, the single authoritative
// completion marker. A failed rename leaves the trigger pending; the next
// attempt resolves through the store-conflict path.
func (o *Orchestrator) markDone(ctx context.Context, desc *RequestDescriptor, traceID string) {
	doneKey := replaceSuffix(desc.TriggerKey, config.DoneSuffix)
	if err := o.store.Rename(ctx, desc.TriggerKey, doneKey); err != nil {
		logging.Error(component, "marking failed, trigger stays pending",
			"trigger", desc.TriggerKey, "error", err, "trace_id", traceID)
		o.metrics.IncPublishFailed(failureReason(ErrMarkingFailed))
		return
	}
	o.metrics.IncMarkedDone()
	if err := o.attempts.Clear(ctx, desc.TriggerKey); err != nil {
		logging.Warn(component, "attempt count clear failed", "trigger", desc.TriggerKey, "error", err)
	}
	logging.Info(component, "trigger marked done", "from", desc.TriggerKey, "to", doneKey, "trace_id", traceID)
}

// noteFailure records a retriable failure and dead-letters the trigger once
// the policy's attempt budget is spent. MaxAttempts zero retries forever.
func (o *Orchestrator) noteFailure(ctx context.Context, key string, cause error, reason string) {
	o.metrics.IncPublishFailed(reason)
	if o.policy.MaxAttempts <= 0 {
		return
	}
	n, err := o.attempts.Incr(ctx, key)
	if err != nil {
		logging.Warn(component, "attempt tracking failed", "trigger", key, "error", err)
		return
	}
	if n >= o.policy.MaxAttempts {
		logging.Error(component, "retry budget exhausted",
			"trigger", key, "attempts", n, "cause", cause)
		o.deadLetter(ctx, key, cause, n)
	}
}

// deadLetter writes a failure report next to the trigger and moves the
// trigger to the failed suffix so scans stop picking it up.
func (o *Orchestrator) deadLetter(ctx context.Context, key string, cause error, attemptCount int) {
	report := map[string]any{
		"trigger":   key,
		"error":     cause.Error(),
		"attempts":  attemptCount,
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	}
	reportKey := replaceSuffix(key, config.FailureReportSuffix)
	if err := o.store.PutJSON(ctx, reportKey, report); err != nil {
		logging.Error(component, "failure report write failed", "trigger", key, "error", err)
	}
	failedKey := replaceSuffix(key, config.FailedSuffix)
	if err := o.store.Rename(ctx, key, failedKey); err != nil {
		logging.Error(component, "dead-letter rename failed, trigger stays pending", "trigger", key, "error", err)
		return
	}
	if err := o.attempts.Clear(ctx, key); err != nil {
		logging.Warn(component, "attempt count clear failed", "trigger", key, "error", err)
	}
	o.metrics.IncDeadLettered()
	logging.Warn(component, "trigger dead-lettered", "from", key, "to", failedKey)
}

// quarantine moves an unparseable trigger aside so it cannot loop forever.
func (o *Orchestrator) quarantine(ctx context.Context, key string) {
	corruptedKey := replaceSuffix(key, config.CorruptedSuffix)
	if err := o.store.Rename(ctx, key, corruptedKey); err != nil {
		logging.Error(component, "quarantine rename failed", "trigger", key, "error", err)
		return
	}
	logging.Warn(component, "corrupted trigger moved", "from", key, "to", corruptedKey)
}

// registerInCatalog pushes the published layer to the open-data catalog.
// Catalog trouble never rolls back a successful publish.
func (o *Orchestrator) registerInCatalog(ctx context.Context, desc *RequestDescriptor, layerName, traceID string) {
	if o.catalog == nil || !desc.WriteOnCatalogue {
		return
	}
	bbox, err := o.publisher.LayerBBox(ctx, desc.Workspace, layerName)
	if err != nil {
		logging.Warn(component, "bbox lookup failed, using world extent", "layer", layerName, "error", err)
		bbox = "-180.0,-90.0,180.0,90.0"
	}
	topic := desc.Analysis
	if topic == "" {
		topic = "Unknown Analysis"
	}
	bundle := CatalogBundle{
		Topic: topic,
		City:  cityFromKey(desc.TriggerKey),
		Date:  dateFromKey(desc.TriggerKey, time.Now()),
		Resources: []CatalogResource{{
			Workspace: desc.Workspace,
			LayerName: layerName,
			DataPath:  desc.DataPath,
			SLDPath:   desc.SLDPath,
			StyleName: desc.StyleName,
			BBox:      bbox,
		}},
	}
	if err := o.catalog.PublishDataset(ctx, bundle); err != nil {
		logging.Error(component, "catalog registration failed",
			"trigger", desc.TriggerKey, "error", err, "trace_id", traceID)
	}
}

// failureReason maps a taxonomy error to a metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrUnsupportedDataType):
		return "unsupported_data_type"
	case errors.Is(err, ErrDataNotFound):
		return "data_not_found"
	case errors.Is(err, ErrWorkspaceNotFound):
		return "workspace_not_found"
	case errors.Is(err, ErrStoreConflict):
		return "store_conflict"
	case errors.Is(err, ErrServerUnavailable):
		return "server_unavailable"
	case errors.Is(err, ErrUnexpectedResponse):
		return "unexpected_response"
	case errors.Is(err, ErrMarkingFailed):
		return "marking_failed"
	default:
		return "unknown"
	}
}

func replaceSuffix(key, suffix string) string {
	return strings.TrimSuffix(key, config.PendingSuffix) + suffix
}

var (
	isoDateRe     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	compactDateRe = regexp.MustCompile(`(20\d{2}|19\d{2})(\d{2})(\d{2})`)
)

// cityFromKey takes the leading path segment of the trigger key as the city
// name, the convention the bucket layout follows.
func cityFromKey(key string) string {
	if i := strings.Index(key, "/"); i > 0 {
		return key[:i]
	}
	return "Unknown"
}

// dateFromKey pulls a YYYY-MM-DD or YYYYMMDD date out of the trigger key,
// falling back to now.
func dateFromKey(key string, now time.Time) string {
	if m := isoDateRe.FindStringSubmatch(key); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	if m := compactDateRe.FindStringSubmatch(key); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	return now.Format("2006-01-02")
}
