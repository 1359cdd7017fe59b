package provision

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/digitalocean/godo"

	"vpsbot/internal/apperr"
)

// Client talks to one provider account.
type Client interface {
	CreateResource(ctx context.Context, spec Spec) (*Handle, error)
	GetStatus(ctx context.Context, h Handle) (State, error)
	Destroy(ctx context.Context, h Handle) error
	Action(ctx context.Context, h Handle, a Action) error
}

type DigitalOceanClient struct {
	api          *godo.Client
	pollInterval time.Duration
}

func NewDigitalOceanClient(token string) *DigitalOceanClient {
	return newDigitalOceanClient(godo.NewFromToken(token))
}

func newDigitalOceanClient(api *godo.Client) *DigitalOceanClient {
	return &DigitalOceanClient{api: api, pollInterval: 3 * time.Second}
}

// CreateResource creates a droplet and blocks until it is active with a
// public address, or ctx ends.
func (c *DigitalOceanClient) CreateResource(ctx context.Context, spec Spec) (*Handle, error) {
	d, _, err := c.api.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:     spec.Name,
		Region:   spec.Region,
		Size:     spec.Size,
		Image:    godo.DropletCreateImage{Slug: spec.Image},
		UserData: spec.UserData,
	})
	if err != nil {
		return nil, apperr.External("digitalocean", err)
	}

	h := &Handle{ResourceID: int64(d.ID), Name: d.Name}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if ip, _ := d.PublicIPv4(); ip != "" && d.Status == "active" {
			h.IPv4 = ip
			return h, nil
		}
		select {
		case <-ctx.Done():
			return h, apperr.External("digitalocean", fmt.Errorf("droplet %d not ready: %w", d.ID, ctx.Err()))
		case <-ticker.C:
		}
		d, _, err = c.api.Droplets.Get(ctx, d.ID)
		if err != nil {
			return h, apperr.External("digitalocean", err)
		}
	}
}

func (c *DigitalOceanClient) GetStatus(ctx context.Context, h Handle) (State, error) {
	d, _, err := c.api.Droplets.Get(ctx, int(h.ResourceID))
	if err != nil {
		return State{}, apperr.External("digitalocean", err)
	}
	st := State{Status: d.Status, Name: d.Name, Size: d.SizeSlug}
	if d.Region != nil {
		st.Region = d.Region.Slug
	}
	st.IPv4, _ = d.PublicIPv4()
	return st, nil
}

func (c *DigitalOceanClient) Destroy(ctx context.Context, h Handle) error {
	if _, err := c.api.Droplets.Delete(ctx, int(h.ResourceID)); err != nil {
		return apperr.External("digitalocean", err)
	}
	return nil
}

func (c *DigitalOceanClient) Action(ctx context.Context, h Handle, a Action) error {
	id := int(h.ResourceID)
	var err error
	switch a {
	case ActionReboot:
		_, _, err = c.api.DropletActions.Reboot(ctx, id)
	case ActionPowerOff:
		_, _, err = c.api.DropletActions.PowerOff(ctx, id)
	case ActionPowerOn:
		_, _, err = c.api.DropletActions.PowerOn(ctx, id)
	default:
		return ErrUnknownAction
	}
	if err != nil {
		return apperr.External("digitalocean", err)
	}
	return nil
}

const passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generatePassword(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = passwordAlphabet[k.Int64()]
	}
	return string(buf), nil
}

// rootPasswordScript is cloud-init user data that enables password login
// for root.
func rootPasswordScript(password string) string {
	return fmt.Sprintf(`#!/bin/bash
echo 'root:%s' | chpasswd
sed -i 's/^#\?PasswordAuthentication .*/PasswordAuthentication yes/' /etc/ssh/sshd_config
sed -i 's/^#\?PermitRootLogin .*/PermitRootLogin yes/' /etc/ssh/sshd_config
systemctl restart ssh || systemctl restart sshd
`, password)
}
