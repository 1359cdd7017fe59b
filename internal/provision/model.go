package provision

import (
	"fmt"
	"time"

	"vpsbot/internal/apperr"
)

type Action string

const (
	ActionReboot   Action = "reboot"
	ActionPowerOff Action = "power_off"
	ActionPowerOn  Action = "power_on"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionReboot, ActionPowerOff, ActionPowerOn:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

var (
	ErrNotOwner         = fmt.Errorf("server does not belong to you: %w", apperr.ErrForbidden)
	ErrUnknownAccount   = fmt.Errorf("provider account %w", apperr.ErrNotFound)
	ErrUnknownAction    = apperr.Validation("unknown server action")
	ErrInvalidOrder     = apperr.Validation("account, name, region, size and image are required")
	ErrResourceNotFound = fmt.Errorf("server %w", apperr.ErrNotFound)
)

// Spec describes a server to create on the provider.
type Spec struct {
	Name     string
	Region   string
	Size     string
	Image    string
	UserData string
}

// Handle points at one provider-side server.
type Handle struct {
	AccountRef string
	ResourceID int64
	Name       string
	IPv4       string
}

// State is what the provider reports for a server right now.
type State struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Size   string `json:"size"`
	Region string `json:"region"`
	IPv4   string `json:"ipv4"`
}

// Resource records which user owns which provider server.
type Resource struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	AccountRef string    `db:"account_ref" json:"account_ref"`
	ResourceID int64     `db:"resource_id" json:"resource_id"`
	Name       string    `db:"name" json:"name"`
	SizeSlug   string    `db:"size_slug" json:"size_slug"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

func (r Resource) Handle() Handle {
	return Handle{AccountRef: r.AccountRef, ResourceID: r.ResourceID, Name: r.Name}
}

type Order struct {
	Account string `json:"account" validate:"required"`
	Name    string `json:"name" validate:"required,hostname"`
	Region  string `json:"region" validate:"required"`
	Size    string `json:"size" validate:"required"`
	Image   string `json:"image" validate:"required"`
}

func (o Order) validate() error {
	if o.Account == "" || o.Name == "" || o.Region == "" || o.Size == "" || o.Image == "" {
		return ErrInvalidOrder
	}
	return nil
}

// Receipt is returned by a successful purchase. Password is only ever shown
// once.
type Receipt struct {
	Resource Resource `json:"resource"`
	Price    int64    `json:"price"`
	Balance  int64    `json:"balance"`
	IPv4     string   `json:"ipv4"`
	Password string   `json:"password"`
}

// Server is a listing row: the ownership record plus live provider state.
type Server struct {
	Resource
	State State `json:"state"`
}
