// backend/src/services/reminder_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/asg67/finmanager/backend/src/config"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
)

const (
	reminderKindStatement = "statement_reminder"
	reminderKindAutoSync  = "auto_sync"
)

// Statement reminders go out on these days of the month.
var reminderDays = map[int]bool{2: true, 12: true, 22: true}

// ReminderService runs the periodic background work: statement upload
// reminders and the daily auto-sync sweep over all bank connections.
type ReminderService struct {
	syncService SyncService
	analytics   AnalyticsService
	interval    time.Duration
}

func NewReminderService(syncService SyncService, analytics AnalyticsService) *ReminderService {
	return &ReminderService{
		syncService: syncService,
		analytics:   analytics,
		interval:    config.Cfg.ReminderCheckInterval,
	}
}

// Start launches the background loop. It stops when ctx is canceled.
func (s *ReminderService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *ReminderService) tick(ctx context.Context) {
	now := time.Now()
	if reminderDays[now.Day()] {
		s.sendStatementReminders(now)
	}
	if config.Cfg.AutoSyncEnabled {
		s.autoSync(ctx, now)
	}
}

// sendStatementReminders notifies every owner once per reminder day.
func (s *ReminderService) sendStatementReminders(now time.Time) {
	day := now.Format("2006-01-02")
	first, err := model.MarkReminderSent(database.DB, day, reminderKindStatement)
	if err != nil {
		logger.L.Error("failed to mark reminder day", "day", day, "error", err)
		return
	}
	if !first {
		return
	}

	owners, err := listOwnerIDs()
	if err != nil {
		logger.L.Error("failed to list owners for reminders", "error", err)
		return
	}
	sent := 0
	for _, ownerID := range owners {
		_, err := model.CreateNotification(database.DB, ownerID, model.NotificationReminder,
			"Загрузите выписки",
			"Пора загрузить свежие банковские выписки и проверить операции.")
		if err != nil {
			logger.L.Error("failed to create reminder notification", "userID", ownerID, "error", err)
			continue
		}
		sent++
	}
	logger.L.Info("statement reminders sent", "day", day, "count", sent)
}

// autoSync pulls yesterday's transactions for every stored connection, once
// per calendar day.
func (s *ReminderService) autoSync(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	first, err := model.MarkReminderSent(database.DB, day, reminderKindAutoSync)
	if err != nil {
		logger.L.Error("failed to mark auto-sync day", "day", day, "error", err)
		return
	}
	if !first {
		return
	}

	conns, err := model.ListAllBankConnections(database.DB)
	if err != nil {
		logger.L.Error("failed to list connections for auto-sync", "error", err)
		return
	}

	yesterday := now.AddDate(0, 0, -1)
	for i := range conns {
		conn := &conns[i]
		result, err := s.syncService.Sync(ctx, conn, yesterday, yesterday)
		if err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				continue
			}
			logger.L.Error("auto-sync failed", "connectionID", conn.ID, "bank", conn.BankCode, "error", err)
			s.notifySyncFailure(conn)
			continue
		}
		if result.Saved > 0 {
			s.analytics.InvalidateEntity(conn.EntityID)
		}
	}
	logger.L.Info("auto-sync sweep done", "day", day, "connections", len(conns))
}

func (s *ReminderService) notifySyncFailure(conn *model.BankConnection) {
	entity, err := model.GetEntityByID(database.DB, conn.EntityID)
	if err != nil {
		return
	}
	_, err = model.CreateNotification(database.DB, entity.OwnerID, model.NotificationSyncFailed,
		"Ошибка синхронизации",
		"Не удалось синхронизировать операции по подключению "+conn.BankCode+". Проверьте токен.")
	if err != nil {
		logger.L.Error("failed to create sync failure notification", "connectionID", conn.ID, "error", err)
	}
}

func listOwnerIDs() ([]string, error) {
	rows, err := database.DB.Query(`SELECT id FROM users WHERE role = ?`, model.RoleOwner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
