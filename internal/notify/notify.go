package notify

import (
	"context"
	"log/slog"
)

// Notifier отправляет оповещения оператору (сбои рассылки, итоги rollover)
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop - оповещения отключены, сообщение только пишется в debug-лог
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) Notify(_ context.Context, text string) error {
	if n.Logger != nil {
		n.Logger.Debug("Operator notification skipped", slog.String("text", text))
	}

	return nil
}
