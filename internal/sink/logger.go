package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

type BookDecoder func(msg domain.StreamMessage) ([]domain.OrderBook, error)

// Logger logs the top of every decoded book. Undecodable frames are logged
// and skipped.
type Logger struct {
	decode BookDecoder
	logger *zap.Logger
}

func NewLogger(decode BookDecoder, logger *zap.Logger) *Logger {
	return &Logger{decode: decode, logger: logger.Named("book-log")}
}

func (l *Logger) Handle(_ context.Context, msg domain.StreamMessage) error {
	books, err := l.decode(msg)
	if err != nil {
		l.logger.Warn("Skipping undecodable book message", zap.String("service", msg.Service), zap.Error(err))
		return nil
	}

	for _, b := range books {
		fields := []zap.Field{
			zap.String("exchange", b.Exchange),
			zap.String("symbol", b.Symbol),
			zap.Time("timestamp", b.Timestamp),
			zap.Int("bid_levels", len(b.Bids)),
			zap.Int("ask_levels", len(b.Asks)),
		}
		if len(b.Bids) > 0 {
			fields = append(fields, zap.Stringer("best_bid", b.Bids[0].Price), zap.Int64("bid_volume", b.Bids[0].Volume))
		}
		if len(b.Asks) > 0 {
			fields = append(fields, zap.Stringer("best_ask", b.Asks[0].Price), zap.Int64("ask_volume", b.Asks[0].Volume))
		}
		l.logger.Info("Order book update", fields...)
	}
	return nil
}
