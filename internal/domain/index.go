package domain

import (
	"regexp"
	"strconv"
)

var versionSuffix = regexp.MustCompile(`_v(\d+)$`)

// IndexDescriptor describes one physical index taking part in a migration.
// The source is the "blue" index and the target the "green" one.
type IndexDescriptor struct {
	Name         string `json:"name"`
	Alias        string `json:"alias"`
	Version      int    `json:"version"`
	IsProduction bool   `json:"is_production"`
}

// NewIndexDescriptor builds a descriptor, deriving the version from a `_v<N>` name suffix.
// Names without a suffix are version 0.
func NewIndexDescriptor(name, alias string, isProduction bool) IndexDescriptor {
	return IndexDescriptor{
		Name:         name,
		Alias:        alias,
		Version:      ParseIndexVersion(name),
		IsProduction: isProduction,
	}
}

// ParseIndexVersion returns N for names ending in `_v<N>`, otherwise 0.
func ParseIndexVersion(name string) int {
	m := versionSuffix.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

// AliasAction is one add or remove entry of an atomic alias update.
type AliasAction struct {
	Type  AliasActionType `json:"type"`
	Index string          `json:"index"`
	Alias string          `json:"alias"`
}

// AliasActionType is "add" or "remove".
type AliasActionType string

const (
	AliasAdd    AliasActionType = "add"
	AliasRemove AliasActionType = "remove"
)
