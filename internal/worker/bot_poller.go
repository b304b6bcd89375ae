package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/telegram"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
	"github.com/trendlens/admin-api/pkg/logger"
	"github.com/trendlens/admin-api/pkg/metrics"
)

const linkPayloadPrefix = "link_"

// UpdateSource is the inbound side of the bot transport.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Replier sends command responses back to the chat.
type Replier interface {
	Send(ctx context.Context, destination, text string) error
}

// ConnectionManager is the slice of the connection service the bot needs.
type ConnectionManager interface {
	RedeemCredential(ctx context.Context, credential, destinationID, username string) (*model.Connection, error)
	ByDestination(ctx context.Context, destinationID string) (*model.Connection, error)
	Disconnect(ctx context.Context, userID string) error
	SetMuted(ctx context.Context, userID string, t *model.AlertType, muted bool) error
}

type BotPollerConfig struct {
	PollTimeout  time.Duration
	ErrorBackoff time.Duration
}

// BotPoller runs the getUpdates long-poll loop and executes chat commands.
// Command failures are replied to and logged, never fatal to the loop.
type BotPoller struct {
	source      UpdateSource
	replier     Replier
	connections ConnectionManager
	config      BotPollerConfig
	logger      *logger.Logger
	metrics     *metrics.Metrics

	offset int64
}

func NewBotPoller(source UpdateSource, replier Replier, connections ConnectionManager,
	config BotPollerConfig, log *logger.Logger, m *metrics.Metrics) *BotPoller {
	if config.PollTimeout <= 0 {
		config.PollTimeout = 30 * time.Second
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 5 * time.Second
	}
	return &BotPoller{
		source:      source,
		replier:     replier,
		connections: connections,
		config:      config,
		logger:      log.WithComponent("bot_poller"),
		metrics:     m,
	}
}

func (p *BotPoller) Start(ctx context.Context) {
	p.logger.Info("starting bot poller")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down bot poller")
			return
		default:
		}

		updates, err := p.source.GetUpdates(ctx, p.offset, p.config.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error(err, "getUpdates failed")
			if p.metrics != nil {
				p.metrics.PollerErrors.Inc()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.ErrorBackoff):
			}
			continue
		}

		p.ProcessBatch(ctx, updates)
	}
}

// ProcessBatch handles one batch of updates and advances the offset past
// it. The offset moves even when individual commands fail; a poisoned
// update must not wedge the loop.
func (p *BotPoller) ProcessBatch(ctx context.Context, updates []telegram.Update) {
	if p.metrics != nil {
		p.metrics.PollerBatches.Inc()
	}

	for _, update := range updates {
		if update.UpdateID >= p.offset {
			p.offset = update.UpdateID + 1
		}
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		p.handleMessage(ctx, update.Message)
	}
}

func (p *BotPoller) handleMessage(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	// Commands in groups arrive as /cmd@botname.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args := fields[1:]

	destination := telegram.DestinationFromChat(msg.Chat.ID)
	username := ""
	if msg.From != nil {
		username = msg.From.Username
	}

	var reply string
	switch command {
	case "/start":
		reply = p.handleStart(ctx, args, destination, username)
	case "/link":
		reply = p.handleLink(ctx, args, destination, username)
	case "/status":
		reply = p.handleStatus(ctx, destination)
	case "/stop":
		reply = p.handleStop(ctx, destination)
	case "/mute":
		reply = p.handleMute(ctx, args, destination, true)
	case "/unmute":
		reply = p.handleMute(ctx, args, destination, false)
	case "/help":
		reply = helpText
	default:
		// Unrecognized commands are ignored like any other text.
		return
	}

	if p.metrics != nil {
		p.metrics.PollerCommands.WithLabelValues(command).Inc()
	}

	if reply == "" {
		return
	}
	if err := p.replier.Send(ctx, destination, reply); err != nil {
		p.logger.Warn("failed to reply", "destination", destination, "error", err.Error())
	}
}

func (p *BotPoller) handleStart(ctx context.Context, args []string, destination, username string) string {
	if len(args) > 0 && strings.HasPrefix(args[0], linkPayloadPrefix) {
		token := strings.TrimPrefix(args[0], linkPayloadPrefix)
		return p.redeem(ctx, token, destination, username)
	}
	return "Welcome to TrendLens alerts.\n\n" +
		"To connect this chat, open the link from your dashboard, or send\n" +
		"/link <code> with the 6-digit code shown there."
}

func (p *BotPoller) handleLink(ctx context.Context, args []string, destination, username string) string {
	if len(args) != 1 {
		return "Usage: /link <code>"
	}
	return p.redeem(ctx, args[0], destination, username)
}

func (p *BotPoller) redeem(ctx context.Context, credential, destination, username string) string {
	_, err := p.connections.RedeemCredential(ctx, credential, destination, username)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrBadRequest) {
			return "That link is invalid or has expired. Generate a new one from your dashboard."
		}
		p.logger.Error(err, "link redemption failed", "destination", destination)
		return "Something went wrong, please try again."
	}
	return "✅ Connected. You will receive alerts in this chat.\nSend /help to manage your subscription."
}

func (p *BotPoller) handleStatus(ctx context.Context, destination string) string {
	conn, err := p.connections.ByDestination(ctx, destination)
	if err != nil || !conn.IsActive {
		return "This chat is not connected. Open the link from your dashboard to connect."
	}

	var b strings.Builder
	b.WriteString("Connected ✅\n")
	if !conn.Subscription.WantsAlerts() {
		b.WriteString("All alerts are muted. Send /unmute to resume.\n")
	}
	b.WriteString("\nAlert types:\n")
	for _, t := range model.AlertTypes {
		if t == model.AlertTypeTest {
			continue
		}
		state := "on"
		if !conn.Subscription.WantsType(t) {
			state = "off"
		}
		fmt.Fprintf(&b, "  %s: %s\n", t, state)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *BotPoller) handleStop(ctx context.Context, destination string) string {
	conn, err := p.connections.ByDestination(ctx, destination)
	if err != nil {
		return "This chat is not connected."
	}
	if err := p.connections.Disconnect(ctx, conn.UserID); err != nil {
		p.logger.Error(err, "disconnect failed", "destination", destination)
		return "Something went wrong, please try again."
	}
	return "Disconnected. Your preferences are kept; relink anytime from your dashboard."
}

func (p *BotPoller) handleMute(ctx context.Context, args []string, destination string, muted bool) string {
	conn, err := p.connections.ByDestination(ctx, destination)
	if err != nil || !conn.IsActive {
		return "This chat is not connected."
	}

	var target *model.AlertType
	if len(args) > 0 {
		t, err := model.ParseAlertType(strings.ToUpper(args[0]))
		if err != nil || t == model.AlertTypeTest {
			return "Unknown alert type. Valid types: EARLY_BREAKOUT, STRONG_ACCELERATION, TREND_REVERSAL."
		}
		target = &t
	}

	if err := p.connections.SetMuted(ctx, conn.UserID, target, muted); err != nil {
		p.logger.Error(err, "mute update failed", "destination", destination)
		return "Something went wrong, please try again."
	}

	switch {
	case muted && target == nil:
		return "🔕 All alerts muted. Send /unmute to resume."
	case !muted && target == nil:
		return "🔔 Alerts resumed."
	case muted:
		return fmt.Sprintf("🔕 %s alerts muted.", *target)
	default:
		return fmt.Sprintf("🔔 %s alerts resumed.", *target)
	}
}

const helpText = "Commands:\n" +
	"/link <code> - connect this chat with a dashboard code\n" +
	"/status - show connection and subscription state\n" +
	"/mute [type] - mute all alerts, or one type\n" +
	"/unmute [type] - resume all alerts, or one type\n" +
	"/stop - disconnect this chat\n" +
	"/help - this message"
