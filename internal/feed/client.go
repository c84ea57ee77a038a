package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

// Типы событий потока изменений
const (
	TypeUserCreated        = "user.created"
	TypeUserDeleted        = "user.deleted"
	TypeMasterTradeCreated = "master_trade.created"
	TypeMasterTradeUpdated = "master_trade.updated"
	TypeScheduleMonthly    = "schedule.monthly"
)

// Message - кадр потока. События приходят с ID/Type/Data,
// клиент отвечает кадрами Method = "ack" / "nack" / "ping".
type Message struct {
	Method    string          `json:"method,omitempty"`
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

type userDeleted struct {
	UID string `json:"uid"`
}

type masterTradeCreated struct {
	ID string `json:"id"`
}

type masterTradeUpdated struct {
	Before models.MasterTrade `json:"before"`
	After  models.MasterTrade `json:"after"`
}

// Handler - триггеры, которые вызывает поток
type Handler interface {
	OnUserCreated(ctx context.Context, rec copytrading.UserRecord) error
	OnUserDeleted(ctx context.Context, uid string) error
	OnMasterTradeCreated(ctx context.Context, masterID string) (copytrading.ExecutionResult, error)
	OnMasterTradeUpdated(ctx context.Context, before, after models.MasterTrade) (copytrading.ExecutionResult, error)
	OnSchedule(ctx context.Context) (copytrading.RolloverResult, error)
}

// Options - параметры подключения
type Options struct {
	URL          string
	EventTimeout time.Duration // лимит на обработку одного события
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

func (o Options) withDefaults() Options {
	if o.EventTimeout <= 0 {
		o.EventTimeout = 2 * time.Minute
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 15 * time.Second
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = time.Second
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = max(30*time.Second, o.MinBackoff)
	}

	return o
}

// Client потребляет поток изменений документов и вызывает триггеры
type Client struct {
	opts    Options
	handler Handler
	logger  *slog.Logger

	writeMu sync.Mutex
}

func New(opts Options, handler Handler, logger *slog.Logger) *Client {
	return &Client{
		opts:    opts.withDefaults(),
		handler: handler,
		logger:  logger,
	}
}

// Run обрабатывает поток до отмены ctx, переподключаясь с экспоненциальной задержкой
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff

	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if connected {
			backoff = c.opts.MinBackoff
		}

		c.logger.Warn("⚠️ Feed connection lost, reconnecting",
			slog.Any("error", err),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

// session держит одно подключение; connected == true если подключение удалось
func (c *Client) session(ctx context.Context) (bool, error) {
	c.logger.Info("Connecting to feed", slog.String("url", c.opts.URL))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial error: %w", err)
	}

	c.logger.Info("✅ Feed connected")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-sessCtx.Done()

		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}()

	go c.sendPings(sessCtx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read error: %w", err)
		}

		c.logger.Debug("📥 Feed READ", slog.String("raw", string(raw)))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error("Failed to unmarshal feed message",
				slog.Any("error", err),
				slog.String("raw", string(raw)))

			continue
		}

		c.handleMessage(sessCtx, conn, msg)
	}
}

// handleMessage обрабатывает событие и подтверждает его.
// События обрабатываются последовательно в порядке поступления.
func (c *Client) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	if msg.Method == "pong" || msg.Type == "" {
		return
	}

	evCtx, cancel := context.WithTimeout(ctx, c.opts.EventTimeout)
	defer cancel()

	err := c.dispatch(evCtx, msg)

	reply := Message{Method: "ack", ID: msg.ID}
	if err != nil {
		c.logger.Error("❌ Feed event failed",
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
			slog.Any("error", err))

		reply = Message{
			Method:    "nack",
			ID:        msg.ID,
			Error:     err.Error(),
			Retryable: errors.Is(err, models.ErrTransient) || errors.Is(err, context.DeadlineExceeded),
		}
	}

	if err := c.write(conn, reply); err != nil {
		c.logger.Error("Failed to acknowledge feed event", slog.String("id", msg.ID), slog.Any("error", err))
	}
}

func (c *Client) dispatch(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeUserCreated:
		var rec copytrading.UserRecord
		if err := decode(msg, &rec); err != nil {
			return err
		}

		return c.handler.OnUserCreated(ctx, rec)

	case TypeUserDeleted:
		var ev userDeleted
		if err := decode(msg, &ev); err != nil {
			return err
		}

		return c.handler.OnUserDeleted(ctx, ev.UID)

	case TypeMasterTradeCreated:
		var ev masterTradeCreated
		if err := decode(msg, &ev); err != nil {
			return err
		}

		_, err := c.handler.OnMasterTradeCreated(ctx, ev.ID)

		return err

	case TypeMasterTradeUpdated:
		var ev masterTradeUpdated
		if err := decode(msg, &ev); err != nil {
			return err
		}

		_, err := c.handler.OnMasterTradeUpdated(ctx, ev.Before, ev.After)

		return err

	case TypeScheduleMonthly:
		_, err := c.handler.OnSchedule(ctx)
		return err

	default:
		return fmt.Errorf("%w: unsupported event type %q", models.ErrValidation, msg.Type)
	}
}

func decode(msg Message, dst any) error {
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return fmt.Errorf("%w: invalid %s payload: %w", models.ErrValidation, msg.Type, err)
	}

	return nil
}

func (c *Client) write(conn *websocket.Conn, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(msg)
}

func (c *Client) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(conn, Message{Method: "ping"}); err != nil {
				c.logger.Error("Feed ping error", slog.Any("error", err))
				return
			}
		}
	}
}
