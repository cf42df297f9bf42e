// Package version reports which build of sanction is running.
//
// Release builds inject the values with
//
//	-ldflags "-X github.com/NicolasHaas/sanction/pkg/version.tag=v1.0.0 -X github.com/NicolasHaas/sanction/pkg/version.commit=abc1234 -X github.com/NicolasHaas/sanction/pkg/version.date=2026-01-01"
//
// Builds without ldflags fall back to the VCS stamp the go tool embeds.
package version

import (
	"runtime/debug"
	"sync"
)

var (
	tag    = ""
	commit = ""
	date   = ""
)

type info struct {
	tag, commit, date string
	dirty             bool
}

var current = sync.OnceValue(func() info {
	i := info{tag: tag, commit: commit, date: date}
	if i.commit != "" {
		return i
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.commit = shorten(s.Value)
		case "vcs.time":
			if i.date == "" {
				i.date = s.Value
			}
		case "vcs.modified":
			i.dirty = s.Value == "true"
		}
	}
	return i
})

func shorten(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String returns the tag, the short commit or "dev".
func String() string {
	i := current()
	switch {
	case i.tag != "":
		return i.tag
	case i.commit != "" && i.dirty:
		return i.commit + "-dirty"
	case i.commit != "":
		return i.commit
	}
	return "dev"
}

// Full adds the commit and build date to String when they are known.
func Full() string {
	i := current()
	s := String()
	if i.tag != "" && i.commit != "" {
		s += " (" + i.commit + ")"
	}
	if i.date != "" {
		s += " built " + i.date
	}
	return s
}
