package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vpsbot/internal/apperr"
	"vpsbot/internal/ledger"
	"vpsbot/internal/payment"
	"vpsbot/internal/provision"
)

func (r *Router) start(_ context.Context, req Request) (Reply, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to %s 👋\n\n", r.cfg.BotName)
	if req.User == nil {
		b.WriteString("Register to start using the service.\n\n")
	} else {
		fmt.Fprintf(&b, "💰 Balance: %s\n\n", r.money(req.User.Balance))
	}
	b.WriteString(r.usage(req))
	return Reply{Text: b.String()}, nil
}

func (r *Router) help(_ context.Context, req Request) (Reply, error) {
	return Reply{Text: r.usage(req)}, nil
}

// usage lists the commands the sender may run.
func (r *Router) usage(req Request) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, cmd := range r.order {
		rt := r.routes[cmd]
		if r.authorize(rt.access, req) != nil {
			continue
		}
		b.WriteString(rt.usage)
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Router) register(ctx context.Context, req Request) (Reply, error) {
	if req.User != nil {
		return Reply{Text: "You are already registered. Send /wallet to see your balance."}, nil
	}
	u, err := r.ledger.Register(ctx, req.UserID, ledger.Profile{Username: req.Username, FirstName: req.FirstName})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("✅ Registered. Your wallet is ready with %s.\nSend /topup <amount> to add funds.", r.money(u.Balance))}, nil
}

func (r *Router) login(ctx context.Context, req Request) (Reply, error) {
	if req.User == nil {
		return Reply{}, ErrNotRegistered
	}
	u, err := r.ledger.Login(ctx, req.UserID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Welcome back, %s. Balance: %s", displayName(u), r.money(u.Balance))}, nil
}

func (r *Router) wallet(_ context.Context, req Request) (Reply, error) {
	return Reply{Text: fmt.Sprintf("💰 Balance: %s\n\nSend /topup <amount> to add funds, /history for recent activity.",
		r.money(req.User.Balance))}, nil
}

func (r *Router) topup(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) != 1 {
		return Reply{}, apperr.Validation(fmt.Sprintf("usage: /topup <amount>, minimum %s", r.money(r.payments.MinAmount())))
	}
	amount, err := parseAmount(req.Args[0])
	if err != nil {
		return Reply{}, err
	}

	in, code, err := r.payments.Create(ctx, req.UserID, amount)
	if err != nil {
		return Reply{}, err
	}

	text := fmt.Sprintf("🧾 Top-up %s\n\nTransfer exactly %s by scanning this QRIS code.\n"+
		"You will receive %s.\nValid until %s.\n\nSend /status %s to check.",
		in.Ref, r.money(in.Settlement), r.money(in.Requested),
		in.ExpiresAt().Format("15:04 MST"), in.Ref)
	return Reply{Text: text, Image: code}, nil
}

func (r *Router) history(ctx context.Context, req Request) (Reply, error) {
	limit, err := historySize(req.Args)
	if err != nil {
		return Reply{}, err
	}
	return r.renderHistory(ctx, req.UserID, limit, "📜 Recent transactions:")
}

func (r *Router) renderHistory(ctx context.Context, userID int64, limit int, title string) (Reply, error) {
	txs, err := r.ledger.History(ctx, userID, limit)
	if err != nil {
		return Reply{}, err
	}
	if len(txs) == 0 {
		return Reply{Text: "No transactions yet."}, nil
	}

	var b strings.Builder
	b.WriteString(title + "\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "%s %-10s %+d  %s\n", tx.CreatedAt.Format("2006-01-02 15:04"), tx.Type, tx.Amount, tx.Details)
	}
	return Reply{Text: b.String()}, nil
}

func historySize(args []string) (int, error) {
	if len(args) == 0 {
		return 10, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 || n > 50 {
		return 0, apperr.Validation("history size must be between 1 and 50")
	}
	return n, nil
}

func (r *Router) status(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) != 1 {
		return Reply{}, apperr.Validation("usage: /status <reference>")
	}
	var v *payment.StatusView
	var err error
	if req.Admin {
		v, err = r.payments.Status(ctx, req.Args[0])
	} else {
		v, err = r.payments.StatusFor(ctx, req.UserID, req.Args[0])
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Top-up %s: %s (%s)", v.Ref, v.Status, r.money(v.Amount))}, nil
}

func (r *Router) orderServer(ctx context.Context, req Request) (Reply, error) {
	if r.provision == nil || len(r.provision.Accounts()) == 0 {
		return Reply{Text: "Ordering is not available right now."}, nil
	}
	if len(req.Args) != 5 {
		var b strings.Builder
		b.WriteString("🚀 Order a VPS\n\nUsage: /order <account> <size> <region> <image> <name>\n\nAccounts: ")
		b.WriteString(strings.Join(r.provision.Accounts(), ", "))
		b.WriteString("\n\nSizes:\n")
		for _, p := range provision.PriceList() {
			fmt.Fprintf(&b, "%s  %s\n", p.Size, r.money(p.Price))
		}
		return Reply{Text: b.String()}, nil
	}

	rc, err := r.provision.Purchase(ctx, req.UserID, provision.Order{
		Account: req.Args[0],
		Size:    req.Args[1],
		Region:  req.Args[2],
		Image:   req.Args[3],
		Name:    req.Args[4],
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("✅ VPS created!\n\nID: %d\n🌐 IP: %s\n🔑 Password: %s\n\nCharged %s, balance %s.",
		rc.Resource.ResourceID, rc.IPv4, rc.Password, r.money(rc.Price), r.money(rc.Balance))}, nil
}

func (r *Router) servers(ctx context.Context, req Request) (Reply, error) {
	if r.provision == nil {
		return Reply{Text: "You have no servers."}, nil
	}
	if len(req.Args) == 2 {
		return r.serverAction(ctx, req)
	}

	list, err := r.provision.Servers(ctx, req.UserID)
	if err != nil {
		return Reply{}, err
	}
	if len(list) == 0 {
		return Reply{Text: "You have no servers. Send /order to buy one."}, nil
	}
	var b strings.Builder
	b.WriteString("🖥 Your servers:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "%d  %s  %s  %s  %s\n", s.ResourceID, s.Name, s.SizeSlug, s.State.Status, s.State.IPv4)
	}
	return Reply{Text: b.String()}, nil
}

func (r *Router) serverAction(ctx context.Context, req Request) (Reply, error) {
	id, err := strconv.ParseInt(req.Args[1], 10, 64)
	if err != nil {
		return Reply{}, apperr.Validation("server id must be a number")
	}
	if req.Args[0] == "destroy" {
		if err := r.provision.Destroy(ctx, req.UserID, id); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf("🗑 Server %d destroyed.", id)}, nil
	}

	action, err := provision.ParseAction(req.Args[0])
	if err != nil {
		return Reply{}, err
	}
	if err := r.provision.Control(ctx, req.UserID, id, action); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("✅ %s sent to server %d.", action, id)}, nil
}

func (r *Router) adminCredit(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) < 2 {
		return Reply{}, apperr.Validation("usage: /admin_credit <user_id> <amount> [note]")
	}
	userID, err := parseUserID(req.Args[0])
	if err != nil {
		return Reply{}, err
	}
	delta, err := strconv.ParseInt(req.Args[1], 10, 64)
	if err != nil {
		return Reply{}, apperr.Validation("amount must be a whole number")
	}
	note := fmt.Sprintf("Admin adjustment by %d", req.UserID)
	if len(req.Args) > 2 {
		note = strings.Join(req.Args[2:], " ")
	}

	balance, err := r.ledger.Adjust(ctx, userID, delta, note)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("✅ User %d adjusted by %+d. New balance: %s", userID, delta, r.money(balance))}, nil
}

func (r *Router) adminSetBalance(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) != 2 {
		return Reply{}, apperr.Validation("usage: /admin_set_balance <user_id> <amount>")
	}
	userID, err := parseUserID(req.Args[0])
	if err != nil {
		return Reply{}, err
	}
	target, err := strconv.ParseInt(strings.NewReplacer(".", "", ",", "").Replace(req.Args[1]), 10, 64)
	if err != nil {
		return Reply{}, apperr.Validation("amount must be a whole number")
	}

	balance, err := r.ledger.SetBalance(ctx, userID, target, fmt.Sprintf("Balance set by admin %d", req.UserID))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("✅ User %d balance is now %s", userID, r.money(balance))}, nil
}

func (r *Router) adminToggle(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) != 1 {
		return Reply{}, apperr.Validation("usage: /admin_toggle <user_id>")
	}
	userID, err := parseUserID(req.Args[0])
	if err != nil {
		return Reply{}, err
	}
	if userID == req.UserID {
		return Reply{}, apperr.Validation("you cannot change your own admin status")
	}

	admin, err := r.ledger.ToggleAdmin(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	if admin {
		return Reply{Text: fmt.Sprintf("✅ User %d is now an admin", userID)}, nil
	}
	return Reply{Text: fmt.Sprintf("✅ User %d is no longer an admin", userID)}, nil
}

func (r *Router) adminHistory(ctx context.Context, req Request) (Reply, error) {
	if len(req.Args) < 1 {
		return Reply{}, apperr.Validation("usage: /admin_history <user_id> [n]")
	}
	userID, err := parseUserID(req.Args[0])
	if err != nil {
		return Reply{}, err
	}
	limit, err := historySize(req.Args[1:])
	if err != nil {
		return Reply{}, err
	}
	if _, err := r.ledger.GetUser(ctx, userID); err != nil {
		return Reply{}, err
	}
	return r.renderHistory(ctx, userID, limit, fmt.Sprintf("📜 Transactions of user %d:", userID))
}

func (r *Router) adminUsers(ctx context.Context, _ Request) (Reply, error) {
	users, err := r.ledger.ListUsers(ctx)
	if err != nil {
		return Reply{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 %d users:\n", len(users))
	for _, u := range users {
		role := ""
		if u.IsAdmin {
			role = " (admin)"
		}
		fmt.Fprintf(&b, "%d  %s%s  %s\n", u.ID, displayName(&u), role, r.money(u.Balance))
	}
	return Reply{Text: b.String()}, nil
}

func (r *Router) ledgerCheck(ctx context.Context, _ Request) (Reply, error) {
	bad, err := r.ledger.CheckAll(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(bad) == 0 {
		return Reply{Text: "✅ Every balance matches its transactions."}, nil
	}
	ids := make([]string, len(bad))
	for i, id := range bad {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return Reply{Text: "⚠️ Inconsistent wallets: " + strings.Join(ids, ", ")}, nil
}

func (r *Router) money(n int64) string {
	return r.cfg.Currency + " " + groupThousands(n)
}

// groupThousands formats 1234567 as 1,234,567.
func groupThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + s
}

// parseAmount accepts "10000", "10.000" and "10,000".
func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, apperr.Validation("user id must be a number")
	}
	return id, nil
}

func parseAmount(s string) (int64, error) {
	clean := strings.NewReplacer(".", "", ",", "").Replace(s)
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil || n <= 0 {
		return 0, apperr.Validation("amount must be a positive whole number")
	}
	return n, nil
}

func displayName(u *ledger.User) string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

