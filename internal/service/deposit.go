package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

// A whole deposit is retried when the wallet credit loses an
// optimistic-lock race; after this many attempts the conflict is surfaced
// to the caller.
const depositAttempts = 3

// Deposits below one gram are rejected.
var minWeight = decimal.RequireFromString("0.001")

// DepositInput is the validated request for one deposit. The caller's
// identity comes from the auth layer, never from the request body.
type DepositInput struct {
	MachineID      uint64
	MaterialID     uint64
	Weight         decimal.Decimal
	IdempotencyKey string
}

// DepositService records recycling deposits: it validates against the
// machine registry and material catalog, computes points from the
// authoritative rate, and writes the activity, the machine timestamp, the
// wallet credit and the outbox event as one database transaction.
type DepositService struct {
	repo   repo.RepositoryInterface
	ledger *LedgerService
	log    *zap.SugaredLogger
}

// NewDepositService returns DepositService.
func NewDepositService(r repo.RepositoryInterface, ledger *LedgerService, logger *zap.SugaredLogger) *DepositService {
	return &DepositService{repo: r, ledger: ledger, log: logger}
}

// RecordDeposit validates and persists one deposit, crediting the
// caller's wallet. Replaying the same idempotency key returns the
// original activity without crediting again.
func (s *DepositService) RecordDeposit(ctx context.Context, userID uint64, in DepositInput) (*model.Activity, error) {
	if in.Weight.LessThan(minWeight) {
		return nil, ErrInvalidWeight
	}
	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var activity *model.Activity
	var err error
	for i := 0; i < depositAttempts; i++ {
		activity, err = s.recordOnce(ctx, userID, in, key)
		if !errors.Is(err, repo.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return activity, nil
}

func (s *DepositService) recordOnce(ctx context.Context, userID uint64, in DepositInput, key string) (*model.Activity, error) {
	var out *model.Activity
	var balance decimal.Decimal
	credited := false
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := s.repo.ActivityByIdemKey(ctx, tx, userID, key)
		if err != nil {
			return err
		}
		if prev != nil {
			out = prev
			return nil
		}

		machine, err := s.repo.GetMachine(ctx, tx, in.MachineID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMachineNotFound
		}
		if err != nil {
			return err
		}
		if machine.Status != model.MachineActive {
			return ErrMachineUnavailable
		}

		material, err := s.repo.GetMaterial(ctx, tx, in.MaterialID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialInvalid
		}
		if err != nil {
			return err
		}
		if !material.IsActive {
			return ErrMaterialInvalid
		}

		// Points come from the rate at deposit time, never the client.
		points := in.Weight.Mul(material.PointsPerKG).Round(2)

		a := &model.Activity{
			UserID:         userID,
			MachineID:      machine.ID,
			MaterialID:     material.ID,
			Weight:         in.Weight,
			PointsEarned:   points,
			IdempotencyKey: &key,
		}
		if err := s.repo.CreateActivity(ctx, tx, a); err != nil {
			return err
		}
		if err := s.repo.MarkMachineUsed(ctx, tx, machine.ID, a.CreatedAt); err != nil {
			return err
		}

		reason := "recycling_" + strings.ToLower(material.Name)
		_, bal, err := s.ledger.CreditTx(ctx, tx, userID, points, reason)
		if err != nil {
			return err
		}
		balance, credited = bal, true

		payload, _ := json.Marshal(map[string]interface{}{
			"activity_id": a.ID,
			"user_id":     userID,
			"machine_id":  machine.ID,
			"material":    material.Name,
			"weight":      in.Weight,
			"points":      points,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Deposit", AggregateID: a.ID,
			EventType: "DepositRecorded", Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}

		a.Machine = machine
		a.Material = material
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	// cache only what the database committed; an idempotent replay
	// credits nothing and leaves the cache alone
	if credited {
		s.ledger.cacheBalance(ctx, userID, balance)
	}
	return out, nil
}

// ListUserActivities returns the caller's deposit history, newest first.
func (s *DepositService) ListUserActivities(ctx context.Context, userID uint64) ([]model.Activity, error) {
	return s.repo.ListActivities(ctx, repo.ActivityFilter{UserID: userID})
}

// GetUserActivity loads one deposit, hiding other users' records behind
// not-found.
func (s *DepositService) GetUserActivity(ctx context.Context, userID, id uint64) (*model.Activity, error) {
	a, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

// GetActivity loads one deposit without an ownership check (admin).
func (s *DepositService) GetActivity(ctx context.Context, id uint64) (*model.Activity, error) {
	return s.repo.GetActivity(ctx, id)
}

// ListActivities is the admin history query.
func (s *DepositService) ListActivities(ctx context.Context, f repo.ActivityFilter) ([]model.Activity, error) {
	return s.repo.ListActivities(ctx, f)
}

// DeleteActivity removes a historical deposit (admin only). The wallet
// credit it produced is intentionally left alone; the ledger stays the
// authoritative record of what was paid out.
func (s *DepositService) DeleteActivity(ctx context.Context, id uint64) error {
	if _, err := s.repo.GetActivity(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteActivity(ctx, id)
}
