package audit

import (
	"context"

	"golang.org/x/sync/errgroup"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// MirrorSink writes to the primary and every mirror concurrently. Only the primary's result counts:
// a mirror failure is logged and dropped.
type MirrorSink struct {
	primary Sink
	mirrors []Sink
	log     logger.Logger
}

var _ Sink = (*MirrorSink)(nil)

func NewMirrorSink(primary Sink, mirrors []Sink, log logger.Logger) *MirrorSink {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &MirrorSink{primary: primary, mirrors: mirrors, log: log.Named("audit")}
}

func (s *MirrorSink) Name() string { return s.primary.Name() }

// Primary is the authoritative sink.
func (s *MirrorSink) Primary() Sink { return s.primary }

func (s *MirrorSink) Append(ctx context.Context, e models.AuditEntry) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.primary.Append(gctx, e)
	})
	for _, m := range s.mirrors {
		m := m
		g.Go(func() error {
			if err := m.Append(gctx, e); err != nil {
				s.log.Warn("Audit mirror write failed", map[string]interface{}{
					"sink":    m.Name(),
					"auditId": e.ID,
					"error":   err,
				})
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *MirrorSink) ByFingerprint(ctx context.Context, fingerprint string) ([]models.AuditEntry, error) {
	if r, ok := s.primary.(Reader); ok {
		return r.ByFingerprint(ctx, fingerprint)
	}
	return nil, nil
}
