// Package upstream fetches authoritative pokemon data from PokeAPI.
package upstream

import (
	"context"

	"github.com/samber/lo"
)

// Source is the authoritative origin of records. FetchByIDOrName returns a
// not_found error for unknown keys and an upstream error for anything transient.
type Source interface {
	FetchByIDOrName(ctx context.Context, key string) (*RawPokemon, error)
	FetchIndex(ctx context.Context) ([]IndexEntry, error)
}

type NamedResource struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url"`
}

type TypeSlot struct {
	Slot int           `json:"slot"`
	Type NamedResource `json:"type"`
}

type AbilitySlot struct {
	Slot     int           `json:"slot"`
	IsHidden bool          `json:"is_hidden"`
	Ability  NamedResource `json:"ability"`
}

type StatSlot struct {
	BaseStat int           `json:"base_stat" validate:"gte=0"`
	Effort   int           `json:"effort"`
	Stat     NamedResource `json:"stat"`
}

// RawPokemon is the subset of the PokeAPI /pokemon payload the dex keeps.
type RawPokemon struct {
	ID        int           `json:"id" validate:"required,gt=0"`
	Name      string        `json:"name" validate:"required"`
	Height    int           `json:"height" validate:"gte=0"`
	Weight    int           `json:"weight" validate:"gte=0"`
	Types     []TypeSlot    `json:"types" validate:"dive"`
	Abilities []AbilitySlot `json:"abilities" validate:"dive"`
	Stats     []StatSlot    `json:"stats" validate:"dive"`
}

// TypeNames returns type names in slot order
func (p *RawPokemon) TypeNames() []string {
	return lo.Map(p.Types, func(t TypeSlot, _ int) string { return t.Type.Name })
}

func (p *RawPokemon) AbilityNames() []string {
	return lo.Map(p.Abilities, func(a AbilitySlot, _ int) string { return a.Ability.Name })
}

// BaseStats maps stat name to base value
func (p *RawPokemon) BaseStats() map[string]int {
	return lo.SliceToMap(p.Stats, func(s StatSlot) (string, int) { return s.Stat.Name, s.BaseStat })
}

// IndexEntry is one row of the upstream listing
type IndexEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type indexPage struct {
	Count   int             `json:"count"`
	Next    *string         `json:"next"`
	Results []NamedResource `json:"results"`
}
