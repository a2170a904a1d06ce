package services

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"
)

// CleanupService handles database maintenance and retention tasks
type CleanupService struct {
	db     *sql.DB
	blobs  serviceinterfaces.BlobStore
	logger *observability.Logger
	now    func() time.Time
}

// CleanupStats counts what a cleanup run would remove
type CleanupStats struct {
	ReadNotifications   int `json:"read_notifications"`
	OrphanedAttachments int `json:"orphaned_attachments"`
}

// Total is the number of rows a cleanup would delete
func (s CleanupStats) Total() int {
	return s.ReadNotifications + s.OrphanedAttachments
}

// NewCleanupServiceWithLogger creates a new cleanup service with logger. blobs
// may be nil, in which case orphaned attachment rows are removed but their
// stored bytes are left in place.
func NewCleanupServiceWithLogger(db *sql.DB, blobs serviceinterfaces.BlobStore, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:     db,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

const (
	readNotificationsWhere = `is_read AND created_at < $1`
	// An attachment is orphaned once no ticket or comment references it
	orphanedAttachmentsWhere = `created_at < $1
		AND NOT EXISTS (SELECT 1 FROM feedback f WHERE f.attachment_key = attachments.key)
		AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.attachment_key = attachments.key)`
)

// PurgeReadNotifications deletes read notifications older than retention
func (c *CleanupService) PurgeReadNotifications(ctx context.Context, retention time.Duration) (result0 int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "purge_read_notifications",
		attribute.String("cleanup.retention", retention.String()))
	defer observability.FinishSpan(span, &err)

	if c.db == nil {
		return 0, contextutils.ErrorWithContextf("database connection not available")
	}

	result, err := c.db.ExecContext(ctx, `DELETE FROM notifications WHERE `+readNotificationsWhere, c.now().Add(-retention))
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to purge notifications")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to read purge result")
	}

	span.SetAttributes(attribute.Int64("cleanup.rows_affected", rows))
	c.logger.Info(ctx, "Purged read notifications", map[string]interface{}{"rows_affected": rows})
	return rows, nil
}

// PurgeOrphanedAttachments deletes uploads that were never attached to a
// ticket or comment within minAge, along with their stored bytes
func (c *CleanupService) PurgeOrphanedAttachments(ctx context.Context, minAge time.Duration) (result0 int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "purge_orphaned_attachments",
		attribute.String("cleanup.min_age", minAge.String()))
	defer observability.FinishSpan(span, &err)

	if c.db == nil {
		return 0, contextutils.ErrorWithContextf("database connection not available")
	}

	rows, err := c.db.QueryContext(ctx, `DELETE FROM attachments WHERE `+orphanedAttachmentsWhere+` RETURNING key`, c.now().Add(-minAge))
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to purge attachments")
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return 0, contextutils.WrapError(err, "failed to scan attachment key")
		}
		keys = append(keys, key)
	}
	if err := rows.Close(); err != nil {
		return 0, contextutils.WrapError(err, "failed to close attachment rows")
	}
	if err := rows.Err(); err != nil {
		return 0, contextutils.WrapError(err, "failed to read purged attachments")
	}

	if c.blobs != nil {
		for _, key := range keys {
			// Rows are already gone; a leftover blob is unreachable and only costs space
			if err := c.blobs.Delete(ctx, key); err != nil {
				c.logger.Warn(ctx, "Failed to delete attachment blob", map[string]interface{}{"key": key, "error": err.Error()})
			}
		}
	}

	span.SetAttributes(attribute.Int("cleanup.rows_affected", len(keys)))
	c.logger.Info(ctx, "Purged orphaned attachments", map[string]interface{}{"rows_affected": len(keys)})
	return int64(len(keys)), nil
}

// RunFullCleanup performs all cleanup operations
func (c *CleanupService) RunFullCleanup(ctx context.Context, notificationRetention, attachmentAge time.Duration) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "run_full_cleanup")
	defer observability.FinishSpan(span, &err)

	start := c.now()
	c.logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"start_time": start.Format(time.RFC3339)})

	if _, err = c.PurgeReadNotifications(ctx, notificationRetention); err != nil {
		c.logger.Error(ctx, "Failed to purge notifications", err, nil)
		return err
	}
	if _, err = c.PurgeOrphanedAttachments(ctx, attachmentAge); err != nil {
		c.logger.Error(ctx, "Failed to purge attachments", err, nil)
		return err
	}

	c.logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"duration_ms": c.now().Sub(start).Milliseconds()})
	return nil
}

// GetCleanupStats counts what RunFullCleanup would remove without deleting anything
func (c *CleanupService) GetCleanupStats(ctx context.Context, notificationRetention, attachmentAge time.Duration) (result0 CleanupStats, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_cleanup_stats")
	defer observability.FinishSpan(span, &err)

	var stats CleanupStats
	if c.db == nil {
		return stats, contextutils.ErrorWithContextf("database connection not available")
	}

	now := c.now()
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+readNotificationsWhere,
		now.Add(-notificationRetention)).Scan(&stats.ReadNotifications); err != nil {
		return stats, contextutils.WrapError(err, "failed to count notifications")
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE `+orphanedAttachmentsWhere,
		now.Add(-attachmentAge)).Scan(&stats.OrphanedAttachments); err != nil {
		return stats, contextutils.WrapError(err, "failed to count attachments")
	}

	span.SetAttributes(
		attribute.Int("cleanup.read_notifications", stats.ReadNotifications),
		attribute.Int("cleanup.orphaned_attachments", stats.OrphanedAttachments),
	)
	return stats, nil
}
