package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a resource class that a reclamation session acts on. At most one
// session per kind runs at a time.
type Kind string

const (
	KindMemory      Kind = "memory"
	KindTemp        Kind = "temp"
	KindUpdateCache Kind = "update-cache"
	KindDNS         Kind = "dns"
	KindRecycleBin  Kind = "recycle-bin"
)

// Kinds returns every kind in display order.
func Kinds() []Kind {
	return []Kind{KindMemory, KindTemp, KindUpdateCache, KindDNS, KindRecycleBin}
}

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown session kind")

// ParseKind accepts the canonical names plus a few aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "ram", "mem":
		return KindMemory, nil
	case "temp", "tmp":
		return KindTemp, nil
	case "update-cache", "updates", "update":
		return KindUpdateCache, nil
	case "dns":
		return KindDNS, nil
	case "recycle-bin", "trash", "bin":
		return KindRecycleBin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Title is the human label used in summaries.
func (k Kind) Title() string {
	switch k {
	case KindMemory:
		return "Memory reclaim"
	case KindTemp:
		return "Temp cleanup"
	case KindUpdateCache:
		return "Update cache cleanup"
	case KindDNS:
		return "DNS flush"
	case KindRecycleBin:
		return "Recycle bin"
	}
	return string(k)
}
