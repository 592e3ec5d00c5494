package models

import "dailyalchemy/internal/normalize"

// Element is a named, emoji-bearing atom. Name keeps its display case.
type Element struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Starters are present in every game and are never produced by a combination.
var Starters = []Element{
	{Name: "earth", Emoji: "🌍"},
	{Name: "water", Emoji: "💧"},
	{Name: "fire", Emoji: "🔥"},
	{Name: "wind", Emoji: "🌬️"},
}

// IsStarterName reports whether a normalized name is one of the starters.
func IsStarterName(normalized string) bool {
	for _, s := range Starters {
		if s.Name == normalized {
			return true
		}
	}
	return false
}

// StarterBank returns a fresh copy of the starter set.
func StarterBank() []Element {
	bank := make([]Element, len(Starters))
	copy(bank, Starters)
	return bank
}

// BankContains reports whether bank holds an element whose normalized name
// equals normalized.
func BankContains(bank []Element, normalized string) bool {
	for _, e := range bank {
		if n, err := normalize.Name(e.Name); err == nil && n == normalized {
			return true
		}
	}
	return false
}
