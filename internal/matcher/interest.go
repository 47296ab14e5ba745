package matcher

import (
	"regexp"
)

// DefaultAllow lists the vendor and keyword patterns that make an object
// worth dumping.
var DefaultAllow = []string{
	"10moon",
	"Acepen",
	"Artisul",
	"Digitizer",
	"EMR",
	"filtr",
	"Gaomon",
	"Genius",
	"Huion",
	"Kenting",
	"libwdi",
	"Lifetec",
	"Monoprice",
	"Parblo",
	"RobotPen",
	"Tablet",
	"UC[-| ]?Logic",
	"UGEE",
	"Veikk",
	"ViewSonic",
	`v\w*hid`,
	"Wacom",
	"WinUSB",
	"XenceLabs",
	"XENX",
	"XP[-| ]?Pen",
}

// DefaultDeny excludes allow-list hits from unrelated vendors.
var DefaultDeny = []string{
	"android",
	"logitech",
}

// Interest classifies strings against an allow-list and a deny-list. The
// deny-list is consulted only for strings that hit the allow-list.
type Interest struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
}

// NewInterest compiles allow and deny case-insensitively.
func NewInterest(allow, deny []string) (*Interest, error) {
	a, err := compileAll(allow)
	if err != nil {
		return nil, err
	}
	d, err := compileAll(deny)
	if err != nil {
		return nil, err
	}
	return &Interest{allow: a, deny: d}, nil
}

// DefaultInterest returns the filter built from DefaultAllow and DefaultDeny.
func DefaultInterest() *Interest {
	i, err := NewInterest(DefaultAllow, DefaultDeny)
	if err != nil {
		panic(err)
	}
	return i
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether s is of interest.
func (i *Interest) Match(s string) bool {
	for _, re := range i.allow {
		if !re.MatchString(s) {
			continue
		}
		for _, deny := range i.deny {
			if deny.MatchString(s) {
				return false
			}
		}
		return true
	}
	return false
}

// Any reports whether any candidate is of interest.
func (i *Interest) Any(candidates ...string) bool {
	for _, s := range candidates {
		if i.Match(s) {
			return true
		}
	}
	return false
}
