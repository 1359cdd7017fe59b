package chat

import (
	"context"
	"errors"
	"fmt"

	"vpsbot/internal/apperr"
	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
	"vpsbot/internal/payment"
	"vpsbot/internal/provision"
)

var (
	ErrNotRegistered = fmt.Errorf("you are not registered yet, send /register first: %w", apperr.ErrForbidden)
	ErrAdminOnly     = fmt.Errorf("this command is for admins only: %w", apperr.ErrForbidden)
)

// Reply is what the bot sends back. Image, when set, is sent with Text as
// its caption.
type Reply struct {
	Text  string `json:"text"`
	Image []byte `json:"-"`
}

// Request is a parsed update together with the sender's wallet, if any.
type Request struct {
	Update
	Command Command
	Args    []string
	User    *ledger.User
	Admin   bool
}

type Handler func(ctx context.Context, req Request) (Reply, error)

type route struct {
	access Access
	usage  string
	handle Handler
}

// Outbox delivers replies to the chat platform.
type Outbox interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendImage(ctx context.Context, chatID int64, caption string, png []byte) error
}

type Config struct {
	BotName   string
	Currency  string
	MultiUser bool
	// IsAdmin reports configured bot admins. Users flagged admin in the
	// ledger are admins too.
	IsAdmin func(userID int64) bool
}

type Router struct {
	cfg       Config
	ledger    *ledger.Service
	payments  *payment.Service
	provision *provision.Service
	routes    map[Command]route
	order     []Command
}

// NewRouter builds the fixed command table. provisioning may be nil when no
// provider account is configured.
func NewRouter(cfg Config, ledgerSvc *ledger.Service, payments *payment.Service, provisioning *provision.Service) *Router {
	if cfg.IsAdmin == nil {
		cfg.IsAdmin = func(int64) bool { return false }
	}
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	r := &Router{cfg: cfg, ledger: ledgerSvc, payments: payments, provision: provisioning}

	r.add(CmdStart, AccessPublic, "/start - main menu", r.start)
	r.add(CmdRegister, AccessPublic, "/register - create your wallet", r.register)
	r.add(CmdLogin, AccessPublic, "/login - sign in again", r.login)
	r.add(CmdHelp, AccessPublic, "/help - this list", r.help)
	r.add(CmdWallet, AccessUser, "/wallet - show your balance", r.wallet)
	r.add(CmdTopup, AccessUser, "/topup <amount> - top up by QRIS", r.topup)
	r.add(CmdHistory, AccessUser, "/history [n] - recent transactions", r.history)
	r.add(CmdStatus, AccessUser, "/status <reference> - top-up status", r.status)
	r.add(CmdOrder, AccessUser, "/order <account> <size> <region> <image> <name> - order a VPS", r.orderServer)
	r.add(CmdServers, AccessUser, "/servers [reboot|power_off|power_on|destroy <id>] - your VPS", r.servers)
	r.add(CmdAdminCredit, AccessAdmin, "/admin_credit <user_id> <amount> [note] - adjust a balance", r.adminCredit)
	r.add(CmdAdminSetBalance, AccessAdmin, "/admin_set_balance <user_id> <amount> - set a balance", r.adminSetBalance)
	r.add(CmdAdminToggle, AccessAdmin, "/admin_toggle <user_id> - grant or revoke admin", r.adminToggle)
	r.add(CmdAdminHistory, AccessAdmin, "/admin_history <user_id> [n] - a user's transactions", r.adminHistory)
	r.add(CmdAdminUsers, AccessAdmin, "/admin_users - list users", r.adminUsers)
	r.add(CmdLedgerCheck, AccessAdmin, "/ledger_check - verify every wallet", r.ledgerCheck)
	return r
}

func (r *Router) add(cmd Command, access Access, usage string, h Handler) {
	if r.routes == nil {
		r.routes = make(map[Command]route)
	}
	r.routes[cmd] = route{access: access, usage: usage, handle: h}
	r.order = append(r.order, cmd)
}

// Access returns the level cmd requires.
func (r *Router) Access(cmd Command) (Access, bool) {
	rt, ok := r.routes[cmd]
	return rt.access, ok
}

// Dispatch resolves and runs the command in u.Text.
func (r *Router) Dispatch(ctx context.Context, u Update) (Reply, error) {
	cmd, args, err := Parse(u.Text)
	if err != nil {
		return Reply{}, err
	}
	rt, ok := r.routes[cmd]
	if !ok {
		return Reply{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, cmd)
	}

	req := Request{Update: u, Command: cmd, Args: args}
	user, err := r.ledger.GetUser(ctx, u.UserID)
	switch {
	case err == nil:
		req.User = user
		req.Admin = user.IsAdmin || r.cfg.IsAdmin(u.UserID)
	case errors.Is(err, ledger.ErrUserNotFound):
		req.Admin = r.cfg.IsAdmin(u.UserID)
	default:
		return Reply{}, err
	}

	if err := r.authorize(rt.access, req); err != nil {
		return Reply{}, err
	}
	return rt.handle(ctx, req)
}

func (r *Router) authorize(access Access, req Request) error {
	if access == AccessPublic {
		return nil
	}
	if req.User == nil {
		return ErrNotRegistered
	}
	if access == AccessAdmin || !r.cfg.MultiUser {
		if !req.Admin {
			return ErrAdminOnly
		}
	}
	return nil
}

// Handle dispatches u and turns any failure into user-facing text.
func (r *Router) Handle(ctx context.Context, u Update) Reply {
	reply, err := r.Dispatch(ctx, u)
	cmd, _, _ := Parse(u.Text)
	if err == nil {
		metrics.RecordChatCommand(string(cmd), "ok")
		return reply
	}

	if errors.Is(err, ErrUnknownCommand) {
		metrics.RecordChatCommand("unknown", "error")
		return Reply{Text: "Unknown command. Send /help to see what I can do."}
	}
	metrics.RecordChatCommand(string(cmd), "error")
	logger.Warn("chat command failed", "command", cmd, "user_id", u.UserID, "error", err)
	return Reply{Text: "❌ " + apperr.UserMessage(err)}
}

// Deliver handles u and sends the reply through out.
func (r *Router) Deliver(ctx context.Context, out Outbox, u Update) error {
	reply := r.Handle(ctx, u)
	if len(reply.Image) > 0 {
		return out.SendImage(ctx, u.ChatID, reply.Text, reply.Image)
	}
	return out.Send(ctx, u.ChatID, reply.Text)
}
