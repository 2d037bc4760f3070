// Package theme persists the light/dark preference.
package theme

import (
	"errors"
	"fmt"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/kvstore"
)

// Theme is a display mode.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Default applies when nothing valid is stored.
const Default = Light

// Parse validates s.
func Parse(s string) (Theme, error) {
	switch t := Theme(s); t {
	case Light, Dark:
		return t, nil
	}
	return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown theme %q", s))
}

// Preference reads and writes the stored theme.
type Preference struct {
	store kvstore.Store
}

func NewPreference(store kvstore.Store) *Preference {
	return &Preference{store: store}
}

// Get returns the stored theme, Default when absent or unrecognised.
func (p *Preference) Get() (Theme, error) {
	raw, ok, err := p.store.Get(kvstore.KeyTheme)
	if errors.Is(err, kvstore.ErrUnreadable) {
		return Default, nil
	}
	if err != nil {
		return Default, fmt.Errorf("read theme: %w", err)
	}
	if !ok {
		return Default, nil
	}
	t, perr := Parse(raw)
	if perr != nil {
		return Default, nil
	}
	return t, nil
}

func (p *Preference) Set(t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}
	if err := p.store.Set(kvstore.KeyTheme, string(t)); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}

// Toggle flips between light and dark and returns the new value.
func (p *Preference) Toggle() (Theme, error) {
	cur, err := p.Get()
	if err != nil {
		return cur, err
	}
	next := Dark
	if cur == Dark {
		next = Light
	}
	return next, p.Set(next)
}
