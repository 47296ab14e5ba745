package matcher

import (
	"fmt"
	"sync"
	"testing"
)

func str(s string) *string { return &s }

func TestMatchField(t *testing.T) {
	c := NewCache()
	tests := []struct {
		name    string
		actual  *string
		pattern *string
		want    bool
	}{
		{"absent pattern absent value", nil, nil, true},
		{"absent pattern present value", str("Wacom"), nil, true},
		{"present pattern absent value", nil, str("Wacom"), false},
		{"case insensitive", str("WACOM Technology"), str("wacom"), true},
		{"search not full match", str("Huion Tablet Driver"), str("Tablet"), true},
		{"anchored pattern", str("Huion Tablet"), str("^Tablet"), false},
		{"no occurrence", str("Logitech Receiver"), str("Huion"), false},
		{"invalid pattern never matches", str("anything"), str("([a-"), false},
		{"empty pattern matches present value", str("x"), str(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.MatchField(tt.actual, tt.pattern); got != tt.want {
				t.Fatalf("MatchField = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	c := NewCache()
	hwids := []string{`USB\VID_1234&PID_0001&REV_0100`, `USB\VID_1234&PID_0001`}

	if !c.MatchAny(hwids, nil) {
		t.Fatal("absent pattern should match")
	}
	if !c.MatchAny(nil, nil) {
		t.Fatal("absent pattern should match an empty list")
	}
	if !c.MatchAny(hwids, str(`USB\\VID_1234.*`)) {
		t.Fatal("expected a hardware id to match")
	}
	if c.MatchAny(hwids, str(`USB\\VID_9999`)) {
		t.Fatal("no hardware id should match")
	}
	if c.MatchAny(nil, str(`.*`)) {
		t.Fatal("present pattern cannot match an empty list")
	}
}

func TestCacheReusesCompiledPattern(t *testing.T) {
	c := NewCache()
	first, err := c.Compile("Gaomon")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	second, _ := c.Compile("Gaomon")
	if first != second {
		t.Fatal("expected the cached *regexp.Regexp to be reused")
	}
	c.Compile("gaomon")
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (keyed by raw text)", c.Len())
	}
}

func TestCacheConcurrentInsertIfAbsent(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	results := make([]any, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			re, _ := c.Compile("XP[-| ]?Pen")
			results[i] = re
			c.MatchString(fmt.Sprintf("XP-Pen %d", i), "XP[-| ]?Pen")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("all goroutines should observe the same compiled pattern")
		}
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestPresent(t *testing.T) {
	got := Present(str("a"), nil, str("b"))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Present = %v", got)
	}
}

func TestInterest(t *testing.T) {
	in := DefaultInterest()
	tests := []struct {
		s    string
		want bool
	}{
		{"Huion Tablet", true},
		{"XP-PEN Technology", true},
		{"UC Logic", true},
		{"vhidmini device", true},
		{"Intel(R) Chipset", false},
		{"Logitech USB Tablet", false},
		{"Android ADB Interface WinUSB", false},
		{"wacom", true},
	}
	for _, tt := range tests {
		if got := in.Match(tt.s); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestInterestDenyOnlyAfterAllowHit(t *testing.T) {
	in, err := NewInterest([]string{"Tablet"}, []string{"Logitech"})
	if err != nil {
		t.Fatal(err)
	}
	if in.Match("Logitech Receiver") {
		t.Fatal("string without allow hit is never of interest")
	}
	if in.Match("Logitech Tablet") {
		t.Fatal("deny-list should reject an allow hit")
	}
	if !in.Any("Logitech Tablet", "Generic Tablet") {
		t.Fatal("second candidate should be of interest")
	}
	if in.Any() {
		t.Fatal("no candidates is not of interest")
	}
}

func TestNewInterestRejectsInvalidPattern(t *testing.T) {
	if _, err := NewInterest([]string{"("}, nil); err == nil {
		t.Fatal("expected compile error")
	}
}
