package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/profilestack/internal/config"
	"github.com/kalambet/profilestack/internal/local"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/reconcile"
	"github.com/kalambet/profilestack/internal/remote"
	"github.com/kalambet/profilestack/internal/session"
)

// device is the client side: the remote API plus the session persisted
// under the data dir.
type device struct {
	cfg    config.Config
	client *remote.Client
	ctrl   *session.Controller
	guest  *local.File[profile.Profile]
}

var openDevice = func() (*device, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		setupLogging("debug")
	} else {
		setupLogging("warn")
	}

	client := remote.New(cfg.Server.URL)
	guest := local.NewFile[profile.Profile](cfg.DevicePath("guest.json"))
	ctrl, err := session.NewController(
		guest,
		local.NewFile[session.State](cfg.DevicePath("session.json")),
		client,
	)
	if err != nil {
		return nil, err
	}
	return &device{cfg: cfg, client: client, ctrl: ctrl, guest: guest}, nil
}

// withHint appends the command that gets the user out of a session error.
func withHint(err error) error {
	switch {
	case errors.Is(err, session.ErrNoActiveProfile):
		return fmt.Errorf("%w: run \"profilestack guest <name>\" or \"profilestack login\"", err)
	case errors.Is(err, session.ErrNotAuthenticated):
		return fmt.Errorf("%w: run \"profilestack login\"", err)
	case errors.Is(err, session.ErrGuestActive):
		return fmt.Errorf("%w: run \"profilestack login\" to sync it or \"profilestack logout\" to discard it", err)
	case errors.Is(err, session.ErrAlreadyAuthenticated), errors.Is(err, reconcile.ErrAlreadyAuthenticated):
		return fmt.Errorf("%w: run \"profilestack logout\" first", err)
	case errors.Is(err, remote.ErrUnauthorized):
		return fmt.Errorf("%w: run \"profilestack logout\" and log in again", err)
	}
	return err
}

func parseKind(s string) (profile.Kind, error) {
	k := profile.Kind(strings.ToLower(s))
	if !k.Valid() {
		names := make([]string, 0, len(profile.Kinds()))
		for _, k := range profile.Kinds() {
			names = append(names, string(k))
		}
		return "", fmt.Errorf("unknown collection %q (want one of: %s)", s, strings.Join(names, ", "))
	}
	return k, nil
}
