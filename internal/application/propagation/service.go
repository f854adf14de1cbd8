package propagation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thomaslazar/pihole-dnspropagate/internal/adapters/archive"
	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
	"github.com/thomaslazar/pihole-dnspropagate/internal/infrastructure/validation"
	"github.com/thomaslazar/pihole-dnspropagate/internal/ports"
)

// ErrPrimaryUnavailable is returned when the primary's records could not be
// read. Nothing is propagated in that case.
var ErrPrimaryUnavailable = errors.New("primary records unavailable")

// Service copies the primary's DNS records onto every secondary.
type Service struct {
	factory     ports.ClientFactory
	primary     teleporter.Node
	secondaries []teleporter.Node
	now         func() time.Time
}

// NewService creates a new propagation service. Secondaries are processed in
// the given order.
func NewService(factory ports.ClientFactory, primary teleporter.Node, secondaries []teleporter.Node) *Service {
	return &Service{
		factory:     factory,
		primary:     primary,
		secondaries: append([]teleporter.Node(nil), secondaries...),
		now:         time.Now,
	}
}

// Synchronize runs one pass. Per-secondary failures are reported in the
// result; only cancellation and a failed primary read return an error.
func (s *Service) Synchronize(ctx context.Context, dryRun bool) (*teleporter.SyncResult, error) {
	result := &teleporter.SyncResult{
		RunID:       uuid.New().String(),
		DryRun:      dryRun,
		StartedAt:   s.now().UTC(),
		Secondaries: make([]teleporter.NodeOutcome, 0, len(s.secondaries)),
	}
	logger := log.With().Str("run_id", result.RunID).Bool("dry_run", dryRun).Logger()
	logger.Info().Int("secondaries", len(s.secondaries)).Msg("sync.start")

	desired, err := s.readPrimary(ctx, logger)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn().Err(ctxErr).Msg("sync.canceled")
			return nil, ctxErr
		}
		logger.Error().Err(err).Str("node", s.primary.Name).Msg("sync.primary_failed")
		return nil, fmt.Errorf("%w: %w", ErrPrimaryUnavailable, err)
	}
	result.Primary = teleporter.NodeOutcome{
		Node:   s.primary.Name,
		Status: teleporter.StatusSuccess,
		Before: teleporter.CountsPtr(desired.Counts()),
		After:  teleporter.CountsPtr(desired.Counts()),
	}

	for _, node := range s.secondaries {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("sync.canceled")
			return nil, err
		}
		outcome := s.syncSecondary(ctx, logger, node, desired, dryRun)
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Str("node", node.Name).Msg("sync.canceled")
			return nil, err
		}
		result.Secondaries = append(result.Secondaries, outcome)
	}

	result.FinishedAt = s.now().UTC()
	logSummary(logger, result)
	return result, nil
}

func (s *Service) readPrimary(ctx context.Context, logger zerolog.Logger) (teleporter.RecordSet, error) {
	client := s.factory.NewClient(s.primary)
	data, err := client.DownloadArchive(ctx)
	client.Release(ctx)
	if err != nil {
		return teleporter.RecordSet{}, fmt.Errorf("download from %s: %w", s.primary.Name, err)
	}

	records, err := archive.ExtractRecords(data)
	if err != nil {
		return teleporter.RecordSet{}, fmt.Errorf("parse archive from %s: %w", s.primary.Name, err)
	}

	// Records are propagated verbatim; suspicious entries are only reported.
	for _, p := range validation.Lint(records) {
		logger.Warn().
			Err(p.Err).
			Str("node", s.primary.Name).
			Str("kind", string(p.Kind)).
			Str("entry", p.Entry).
			Msg("sync.primary.suspicious_record")
	}

	counts := records.Counts()
	logger.Info().
		Str("node", s.primary.Name).
		Int("hosts", counts.Hosts).
		Int("aliases", counts.Aliases).
		Msg("sync.primary.loaded")
	return records, nil
}

func (s *Service) syncSecondary(ctx context.Context, logger zerolog.Logger, node teleporter.Node, desired teleporter.RecordSet, dryRun bool) teleporter.NodeOutcome {
	client := s.factory.NewClient(node)
	defer client.Release(ctx)

	nodeLog := logger.With().Str("node", node.Name).Logger()
	outcome := teleporter.NodeOutcome{Node: node.Name}

	data, err := client.DownloadArchive(ctx)
	if err != nil {
		nodeLog.Error().Err(err).Msg("sync.node.download_failed")
		outcome.Status = teleporter.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	current, err := archive.ExtractRecords(data)
	if err != nil {
		nodeLog.Error().Err(err).Msg("sync.node.parse_failed")
		outcome.Status = teleporter.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	before := current.Counts()
	after := desired.Counts()
	outcome.Before = teleporter.CountsPtr(before)

	if dryRun {
		nodeLog.Info().
			Int("hosts_before", before.Hosts).
			Int("hosts_after", after.Hosts).
			Int("aliases_before", before.Aliases).
			Int("aliases_after", after.Aliases).
			Bool("changed", !current.Equal(desired)).
			Msg("sync.node.dry_run")
		outcome.Status = teleporter.StatusSkipped
		outcome.After = teleporter.CountsPtr(after)
		return outcome
	}

	// Always written, even when current already equals desired.
	updated, err := archive.ReplaceDNSSection(data, desired)
	if err == nil {
		err = client.UploadArchive(ctx, updated)
	}
	if err != nil {
		nodeLog.Error().Err(err).Msg("sync.node.apply_failed")
		outcome.Status = teleporter.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	nodeLog.Info().
		Int("hosts", after.Hosts).
		Int("aliases", after.Aliases).
		Msg("sync.node.success")
	outcome.Status = teleporter.StatusSuccess
	outcome.After = teleporter.CountsPtr(after)
	return outcome
}

func logSummary(logger zerolog.Logger, result *teleporter.SyncResult) {
	event := logger.Info()
	if !result.AllSucceeded() {
		event = logger.Warn()
	}
	event.
		Interface("primary", result.Primary).
		Interface("secondaries", result.Secondaries).
		Int("failed", len(result.Failed())).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("sync.summary")
}
