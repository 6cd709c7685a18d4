// Package users implements the user lifecycle and balance operations:
// registration, deletion, balance reads, and admin deposit/withdraw
// with an append-only history.
package users

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"spotmarket/internal/rpc"
	"spotmarket/internal/store"
	"spotmarket/pkg/types"
)

type Service struct {
	db     store.DB
	logger *slog.Logger
}

func NewService(db store.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger.With("service", "users")}
}

// Register binds the service's methods onto its worker.
func (s *Service) Register(w *rpc.Worker) {
	w.Register("Users.create_user", rpc.NewHandler(s.CreateUser))
	w.Register("Users.get_user", rpc.NewHandler(s.GetUser))
	w.Register("Users.delete_user", rpc.NewHandler(s.DeleteUser))
	w.Register("Users.get_balance", rpc.NewHandler(s.GetBalance))
	w.Register("Users.deposit", rpc.NewHandler(s.Deposit))
	w.Register("Users.withdraw", rpc.NewHandler(s.Withdraw))
}

// CreateUser registers a user and seeds their zero settlement balance.
func (s *Service) CreateUser(ctx context.Context, req types.CreateUserRequest) (*types.User, error) {
	role := req.Role
	if role == "" {
		role = types.RoleUser
	}
	u := &types.User{ID: uuid.New(), Name: req.Name, Role: role}
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		return tx.EnsureBalance(ctx, u.ID, types.SettlementTicker)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, req types.GetUserRequest) (*types.User, error) {
	var out *types.User
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.UserByID(ctx, req.ID)
		out = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes the user and, via cascades, their balances,
// history and orders. Trade history survives. The row lock serializes
// against concurrent deposits and order admissions for that user.
func (s *Service) DeleteUser(ctx context.Context, req types.DeleteUserRequest) (*types.User, error) {
	var out *types.User
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.UserByIDForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, req.ID); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user deleted", "user_id", req.ID)
	return out, nil
}

func (s *Service) GetBalance(ctx context.Context, req types.GetBalanceRequest) (map[string]int64, error) {
	var out map[string]int64
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.UserByID(ctx, req.UserID); err != nil {
			return err
		}
		balances, err := tx.Balances(ctx, req.UserID)
		out = balances
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deposit credits a balance and appends a history row. Operator-level:
// it ignores the derived order reservations on purpose.
func (s *Service) Deposit(ctx context.Context, req types.BalanceOpRequest) (*types.BalanceEntry, error) {
	return s.applyBalanceOp(ctx, req, types.OpDeposit)
}

// Withdraw debits a balance and appends a history row. Fails when the
// raw balance cannot cover the amount; open-order reservations are not
// consulted, same as Deposit.
func (s *Service) Withdraw(ctx context.Context, req types.BalanceOpRequest) (*types.BalanceEntry, error) {
	return s.applyBalanceOp(ctx, req, types.OpWithdraw)
}

func (s *Service) applyBalanceOp(ctx context.Context, req types.BalanceOpRequest, op types.OperationType) (*types.BalanceEntry, error) {
	if req.Amount <= 0 {
		return nil, types.Criticalf("non-positive %s amount %d", op, req.Amount)
	}
	entry := &types.BalanceEntry{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Ticker:    req.Ticker,
		Amount:    req.Amount,
		Operation: op,
	}
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.UserByIDForUpdate(ctx, req.UserID); err != nil {
			return err
		}
		if _, err := tx.InstrumentByTicker(ctx, req.Ticker); err != nil {
			return err
		}
		delta := req.Amount
		if op == types.OpWithdraw {
			held, err := tx.Balance(ctx, req.UserID, req.Ticker)
			if err != nil {
				return err
			}
			if held < req.Amount {
				return &types.InsufficientFundsError{
					UserID:    req.UserID,
					Requested: req.Amount,
					Available: held,
				}
			}
			delta = -req.Amount
		}
		if err := tx.AddToBalance(ctx, req.UserID, req.Ticker, delta); err != nil {
			return err
		}
		return tx.InsertBalanceEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("balance updated",
		"user_id", req.UserID, "ticker", req.Ticker,
		"operation", op, "amount", req.Amount)
	return entry, nil
}
