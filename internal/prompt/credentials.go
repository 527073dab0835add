package prompt

import (
	"context"
	"fmt"
)

// Credentials identifies the operator against the backend.
type Credentials struct {
	URL       string
	Username  string
	Password  string
	CreatedBy string
}

// Complete reports whether every field needed for login is present.
func (c Credentials) Complete() bool {
	return c.URL != "" && c.Username != "" && c.Password != ""
}

// Collect fills in the missing fields of preset by prompting. Fields already
// set in preset are offered as defaults, except the password which is only
// asked for when empty.
func (c *Console) Collect(ctx context.Context, preset Credentials) (Credentials, error) {
	var (
		out = preset
		err error
	)
	if out.URL, err = c.Ask(ctx, "ArchivesSpace backend URL", preset.URL); err != nil {
		return out, err
	}
	if out.Username, err = c.Ask(ctx, "Username", preset.Username); err != nil {
		return out, err
	}
	if preset.Password == "" {
		if out.Password, err = c.Secret(ctx, "Password"); err != nil {
			return out, err
		}
	}
	if out.CreatedBy, err = c.Ask(ctx, "Created by", preset.CreatedBy); err != nil {
		return out, err
	}
	if !out.Complete() {
		return out, fmt.Errorf("prompt: backend URL, username and password are required")
	}
	return out, nil
}
