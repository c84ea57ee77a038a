package copytrading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/ids"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/hmukwana/trade-alerts-firebase/internal/storage"
)

// DefaultStartingBalance - баланс нового аккаунта
const DefaultStartingBalance = 10000

type MasterTradeStorage interface {
	CreateMasterTrade(ctx context.Context, m models.MasterTrade) (bool, error)
	UpdateMasterTradeStatus(ctx context.Context, id, status string) (before, after models.MasterTrade, err error)
}

type AccountStorage interface {
	CreateUser(ctx context.Context, user models.User) (bool, error)
	MarkUserDeleted(ctx context.Context, uid string) error
}

// Store - все, что нужно сервису от хранилища
type Store interface {
	TradeStorage
	UserStorage
	DashboardStorage
	LogStorage
	MasterTradeStorage
	AccountStorage
}

// Service - точки входа триггеров и административных вызовов
type Service struct {
	engine          *Engine
	store           Store
	startingBalance float64
	logger          *slog.Logger
}

// NewService создает сервис поверх engine
func NewService(engine *Engine, store Store, startingBalance float64, logger *slog.Logger) *Service {
	if startingBalance <= 0 {
		startingBalance = DefaultStartingBalance
	}

	return &Service{
		engine:          engine,
		store:           store,
		startingBalance: startingBalance,
		logger:          logger,
	}
}

// OnUserCreated создает пользователя с пробной подпиской и стартовым балансом.
// Повторная доставка события не сбрасывает существующий аккаунт.
func (s *Service) OnUserCreated(ctx context.Context, rec UserRecord) error {
	uid := strings.TrimSpace(rec.UID)
	if uid == "" {
		return fmt.Errorf("%w: uid is required", models.ErrValidation)
	}

	created, err := s.store.CreateUser(ctx, models.User{
		UID:                uid,
		Email:              rec.Email,
		Joined:             s.engine.now(),
		SubscriptionStatus: models.SubscriptionTrial,
		AccountStatus:      models.AccountActive,
	})
	if err != nil {
		return err
	}

	if !created {
		s.logger.Info("User already exists, skipping initialization", slog.String("user_id", uid))
		return nil
	}

	s.logger.Info("👤 User created", slog.String("user_id", uid))

	return s.ResetDashboard(ctx, uid, s.startingBalance)
}

// OnUserDeleted помечает аккаунт удаленным, данные не удаляются
func (s *Service) OnUserDeleted(ctx context.Context, uid string) error {
	if err := s.store.MarkUserDeleted(ctx, uid); err != nil {
		return err
	}

	s.logger.Info("🗑 User marked deleted", slog.String("user_id", uid))

	return nil
}

// ResetDashboard перезаписывает дашборд новым балансом и удаляет сделки пользователя.
// Дашборд, баланс пользователя и сделки меняются в одной транзакции.
func (s *Service) ResetDashboard(ctx context.Context, uid string, newBalance float64) error {
	if err := ValidateBalance(newBalance); err != nil {
		return err
	}

	var cleared int64

	err := s.store.InTx(ctx, "reset_dashboard", func(ctx context.Context, tx *storage.Tx) error {
		if _, err := tx.GetUser(ctx, uid); err != nil {
			return err
		}

		_, err := tx.UpdateDashboard(ctx, uid, func(d *models.Dashboard) error {
			*d = models.Dashboard{
				UserID:         uid,
				CurrentBalance: newBalance,
				Balances:       []float64{newBalance},
				RolledPeriod:   d.RolledPeriod,
			}

			return nil
		})
		if err != nil {
			return err
		}

		cleared, err = tx.DeleteUserTrades(ctx, uid)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to reset dashboard: %w", err)
	}

	s.logger.Info("♻️ Dashboard reset",
		slog.String("user_id", uid),
		slog.Float64("balance", newBalance),
		slog.Int64("cleared_trades", cleared))

	userID := uid
	if err := s.store.AddLog(ctx, models.ActivityLog{
		UserID:  &userID,
		Level:   "INFO",
		Action:  "reset_dashboard",
		Message: fmt.Sprintf("dashboard reset to %.2f, %d trades cleared", newBalance, cleared),
	}); err != nil {
		s.logger.Error("Failed to add activity log", slog.Any("error", err))
	}

	return nil
}

// CreateMasterTrade проверяет и сохраняет мастер-сделку, затем рассылает ее подписчикам.
// С ключом идемпотентности повтор запроса находит уже сохраненную сделку и только досылает ее.
// Если мастер-сделка сохранена, она возвращается и при ошибке рассылки.
func (s *Service) CreateMasterTrade(ctx context.Context, req CreateMasterTradeRequest) (models.MasterTrade, ExecutionResult, error) {
	req, err := req.Validate()
	if err != nil {
		return models.MasterTrade{}, ExecutionResult{}, err
	}

	rr, err := RiskRewardRatio(req.Type, req.Price, req.TP, req.SL)
	if err != nil {
		return models.MasterTrade{}, ExecutionResult{}, err
	}

	var id string
	if req.IdempotencyKey != "" {
		id = ids.MasterTradeIDForKey(req.IdempotencyKey)
	} else if id, err = ids.NewMasterTradeID(); err != nil {
		return models.MasterTrade{}, ExecutionResult{}, err
	}

	now := s.engine.now()
	master := models.MasterTrade{
		ID:        id,
		Type:      req.Type,
		Price:     req.Price,
		TP:        req.TP,
		SL:        req.SL,
		RR:        &rr,
		Status:    models.TradeStatusActive,
		Timestamp: now,
		UpdatedAt: now,
	}

	created, err := s.store.CreateMasterTrade(ctx, master)
	if err != nil {
		return models.MasterTrade{}, ExecutionResult{}, err
	}

	if created {
		s.logger.Info("📝 Master trade created",
			slog.String("master_id", master.ID),
			slog.String("type", master.Type),
			slog.Float64("rr", rr))
	} else {
		existing, err := s.store.GetMasterTrade(ctx, master.ID)
		if err != nil {
			return models.MasterTrade{}, ExecutionResult{}, err
		}

		if !sameLevels(existing, master) {
			return models.MasterTrade{}, ExecutionResult{}, fmt.Errorf(
				"%w: idempotency key %q is already used by another master trade", models.ErrConflict, req.IdempotencyKey)
		}

		master = existing

		s.logger.Info("🔁 Master trade already exists, resuming fan-out",
			slog.String("master_id", master.ID),
			slog.String("status", master.Status))
	}

	result, err := s.engine.Propagate(ctx, master.ID)
	if err != nil {
		return master, result, err
	}

	return master, result, result.Err("fanout")
}

func sameLevels(a, b models.MasterTrade) bool {
	return a.Type == b.Type && a.Price == b.Price && a.TP == b.TP && a.SL == b.SL
}

// OnMasterTradeCreated рассылает мастер-сделку, записанную другим источником.
// Сбой части пользователей возвращается как ErrTransient, чтобы событие было доставлено повторно.
func (s *Service) OnMasterTradeCreated(ctx context.Context, masterID string) (ExecutionResult, error) {
	result, err := s.engine.Propagate(ctx, masterID)
	if err != nil {
		return result, err
	}

	return result, result.Err("fanout")
}

// OnMasterTradeUpdated рассчитывает дочерние сделки только при смене статуса
func (s *Service) OnMasterTradeUpdated(ctx context.Context, before, after models.MasterTrade) (ExecutionResult, error) {
	if after.ID == "" {
		return ExecutionResult{}, fmt.Errorf("%w: master trade id is required", models.ErrValidation)
	}

	if strings.EqualFold(strings.TrimSpace(before.Status), strings.TrimSpace(after.Status)) {
		s.logger.Debug("Master trade status unchanged", slog.String("master_id", after.ID))
		return ExecutionResult{MasterID: after.ID}, nil
	}

	result, err := s.engine.Settle(ctx, after.ID, after.Status)
	if err != nil {
		return result, err
	}

	return result, result.Err("settlement")
}

// UpdateMasterTradeStatus сохраняет новый статус и запускает расчет
func (s *Service) UpdateMasterTradeStatus(ctx context.Context, id, status string) (ExecutionResult, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return ExecutionResult{}, fmt.Errorf("%w: status is required", models.ErrValidation)
	}

	before, after, err := s.store.UpdateMasterTradeStatus(ctx, id, status)
	if err != nil {
		return ExecutionResult{}, err
	}

	return s.OnMasterTradeUpdated(ctx, before, after)
}

// OnSchedule - ежемесячный триггер
func (s *Service) OnSchedule(ctx context.Context) (RolloverResult, error) {
	s.logger.Info("⏰ Monthly schedule fired", slog.Time("at", time.Now().UTC()))

	return s.engine.Rollover(ctx)
}
