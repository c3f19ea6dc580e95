package main

import (
	"context"
	"fmt"

	"futsal_notifier/internal/api"
	"futsal_notifier/internal/archive"

	"go.uber.org/zap"
)

// feedFetcher is the part of the REST client the sync needs.
type feedFetcher interface {
	FetchNotifications(ctx context.Context, limit int) (*api.FetchResult, error)
}

// runArchiveSync copies the user's current REST feed into the archive in
// batches. A failed batch is counted and the sync moves on.
func runArchiveSync(
	ctx context.Context,
	feed feedFetcher,
	archiver archive.Archiver,
	logger *zap.Logger,
	userID string,
	limit int,
	batchSize int,
) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	logger.Info("Starting notification archive sync...",
		zap.String("userID", userID),
		zap.Int("limit", limit),
		zap.Int("batchSize", batchSize),
	)

	res, err := feed.FetchNotifications(ctx, limit)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}
	if len(res.Notifications) == 0 {
		logger.Info("No notifications to sync.")
		return nil
	}

	totalSynced, totalFailed := 0, 0
	batchNumber := 1
	for start := 0; start < len(res.Notifications); start += batchSize {
		end := start + batchSize
		if end > len(res.Notifications) {
			end = len(res.Notifications)
		}
		records := make([]archive.Record, 0, end-start)
		for _, n := range res.Notifications[start:end] {
			records = append(records, archive.FromNotification(userID, n, archive.SourceREST))
		}

		stored, err := archiver.IndexBatch(ctx, records)
		if err != nil {
			logger.Error("Batch failed", zap.Int("batchNumber", batchNumber), zap.Error(err))
		}
		totalSynced += stored
		totalFailed += len(records) - stored
		logger.Info("Batch processed.",
			zap.Int("batchNumber", batchNumber),
			zap.Int("syncedInBatch", stored),
			zap.Int("failedInBatch", len(records)-stored),
		)
		batchNumber++
	}

	logger.Info("Notification archive sync finished.",
		zap.Int("totalSynced", totalSynced),
		zap.Int("totalFailed", totalFailed),
	)
	if totalFailed > 0 {
		return fmt.Errorf("%d notifications failed to sync", totalFailed)
	}
	return nil
}
