// Package instruments is the instrument registry.
package instruments

import (
	"context"
	"log/slog"

	"spotmarket/internal/rpc"
	"spotmarket/internal/store"
	"spotmarket/pkg/types"
)

type Service struct {
	db     store.DB
	logger *slog.Logger
}

func NewService(db store.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger.With("service", "instruments")}
}

// Register binds the service's methods onto its worker.
func (s *Service) Register(w *rpc.Worker) {
	w.Register("Instruments.add_instrument", rpc.NewHandler(s.AddInstrument))
	w.Register("Instruments.delete_instrument", rpc.NewHandler(s.DeleteInstrument))
	w.Register("Instruments.get_instruments", rpc.NewHandler(s.GetInstruments))
}

func (s *Service) AddInstrument(ctx context.Context, req types.AddInstrumentRequest) (*types.Instrument, error) {
	in := req.Instrument
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertInstrument(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("instrument added", "ticker", in.Ticker)
	return &in, nil
}

// DeleteInstrument removes the instrument under a row lock; balances and
// orders on it cascade away, trade history stays.
func (s *Service) DeleteInstrument(ctx context.Context, req types.DeleteInstrumentRequest) (*types.Instrument, error) {
	var out *types.Instrument
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		in, err := tx.InstrumentByTickerForUpdate(ctx, req.Ticker)
		if err != nil {
			return err
		}
		if err := tx.DeleteInstrument(ctx, req.Ticker); err != nil {
			return err
		}
		out = in
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("instrument deleted", "ticker", req.Ticker)
	return out, nil
}

func (s *Service) GetInstruments(ctx context.Context, _ struct{}) ([]types.Instrument, error) {
	var out []types.Instrument
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		ins, err := tx.Instruments(ctx)
		out = ins
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.Instrument{}
	}
	return out, nil
}
