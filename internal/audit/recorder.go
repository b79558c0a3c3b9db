package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/repo"
)

// Recorder persists audit rows. All its methods are best-effort: a failure to
// write history is logged and swallowed, never returned, because an audit-log
// failure must not block or roll back the primary write it annotates.
//
// An empty user id means no identity is available; the row is skipped rather
// than attributed to nobody.
type Recorder struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewRecorder builds a Recorder over the given database handle.
func NewRecorder(db *gorm.DB, lg zerolog.Logger) *Recorder {
	return &Recorder{db: db, log: lg}
}

func (r *Recorder) tracer() trace.Tracer {
	return otel.Tracer("internal/audit")
}

// MiniatureCreated records an unconditional full-snapshot row for a new
// miniature.
func (r *Recorder) MiniatureCreated(ctx context.Context, userID string, m *domain.Miniature) {
	snap, err := marshalSnapshot(StateOf(m))
	if err != nil {
		r.log.Warn().Err(err).Int64("miniature_id", m.ID).Msg("audit snapshot marshal failed")
		return
	}
	r.persist(ctx, userID, m.ID, ActionMiniatureCreate, snap, nil)
}

// MiniatureUpdated records a diff row. A nil change map is a no-op: an
// update that touched nothing leaves no history.
func (r *Recorder) MiniatureUpdated(ctx context.Context, userID string, miniatureID int64, changes map[string]Change) {
	if len(changes) == 0 {
		return
	}
	payload, err := marshalChanges(changes)
	if err != nil {
		r.log.Warn().Err(err).Int64("miniature_id", miniatureID).Msg("audit change marshal failed")
		return
	}
	r.persist(ctx, userID, miniatureID, ActionMiniatureUpdate, payload, nil)
}

// MiniatureDeleted records the final snapshot of a miniature before removal.
func (r *Recorder) MiniatureDeleted(ctx context.Context, userID string, m *domain.Miniature) {
	snap, err := marshalSnapshot(StateOf(m))
	if err != nil {
		r.log.Warn().Err(err).Int64("miniature_id", m.ID).Msg("audit snapshot marshal failed")
		return
	}
	r.persist(ctx, userID, m.ID, ActionMiniatureDelete, snap, nil)
}

// ImageOperation records an image upload/replace/delete against a miniature.
// The delta is inherently binary, so the row carries the image path as
// metadata instead of a change map.
func (r *Recorder) ImageOperation(ctx context.Context, userID string, miniatureID int64, action, path string) {
	meta, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		r.log.Warn().Err(err).Int64("miniature_id", miniatureID).Msg("audit metadata marshal failed")
		return
	}
	m := string(meta)
	r.persist(ctx, userID, miniatureID, action, nil, &m)
}

// persist writes one row, swallowing failures.
func (r *Recorder) persist(ctx context.Context, userID string, miniatureID int64, action string, changes, metadata *string) {
	if userID == "" {
		r.log.Debug().
			Int64("miniature_id", miniatureID).
			Str("action", action).
			Msg("no user identity; skipping audit row")
		return
	}

	ctx, span := r.tracer().Start(ctx, "audit.persist")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("miniature.id", miniatureID),
		attribute.String("audit.action", action),
	)

	entry := &domain.AuditLog{
		ID:          uuid.NewString(),
		UserID:      userID,
		MiniatureID: miniatureID,
		Action:      action,
		Changes:     changes,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.InsertAuditLog(ctx, r.db, entry); err != nil {
		span.RecordError(err)
		r.log.Warn().Err(err).
			Int64("miniature_id", miniatureID).
			Str("action", action).
			Msg("audit write failed; primary operation unaffected")
	}
}
