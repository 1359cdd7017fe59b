// Package chat turns chat platform updates into calls on the wallet, payment
// and provisioning services.
package chat

import (
	"errors"
	"strings"
)

type Command string

const (
	CmdStart       Command = "start"
	CmdRegister    Command = "register"
	CmdLogin       Command = "login"
	CmdHelp        Command = "help"
	CmdWallet      Command = "wallet"
	CmdTopup       Command = "topup"
	CmdHistory     Command = "history"
	CmdStatus      Command = "status"
	CmdOrder       Command = "order"
	CmdServers     Command = "servers"
	CmdAdminCredit Command = "admin_credit"
	CmdAdminUsers  Command = "admin_users"
	CmdLedgerCheck Command = "ledger_check"

	CmdAdminSetBalance Command = "admin_set_balance"
	CmdAdminToggle     Command = "admin_toggle"
	CmdAdminHistory    Command = "admin_history"
)

// Access is the minimum standing a sender needs to run a command.
type Access int

const (
	AccessPublic Access = iota
	AccessUser
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessUser:
		return "user"
	case AccessAdmin:
		return "admin"
	default:
		return "public"
	}
}

var ErrUnknownCommand = errors.New("unknown command")

// Update is one inbound message as posted by the chat gateway.
type Update struct {
	ChatID    int64  `json:"chat_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Text      string `json:"text" binding:"required"`
}

// Parse splits "/topup@bot 10000" into the command and its arguments.
func Parse(text string) (Command, []string, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, ErrUnknownCommand
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, ErrUnknownCommand
	}
	return Command(strings.ToLower(name)), fields[1:], nil
}
