package version

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"v1.2", 1, 2},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major {
				t.Errorf("Major = %d, want %d", v.Major, tt.major)
			}
			if v.Minor != tt.minor {
				t.Errorf("Minor = %d, want %d", v.Minor, tt.minor)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"abc",
		"1.0.0",
		"1.x",
		"-1.0",
		".1",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestAPIVersion_String(t *testing.T) {
	v, err := Parse("v10.23")
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "10.23" {
		t.Errorf("String() = %q, want %q", v.String(), "10.23")
	}
}

func TestCompatible(t *testing.T) {
	v10, _ := Parse("1.0")
	v11, _ := Parse("1.1")
	v20, _ := Parse("2.0")

	if !v10.Compatible(v11) || !v11.Compatible(v10) {
		t.Error("1.0 and 1.1 should be compatible")
	}
	if v10.Compatible(v20) || v20.Compatible(v10) {
		t.Error("1.0 and 2.0 should NOT be compatible")
	}
}

func TestSupports(t *testing.T) {
	tests := []struct {
		announced string
		want      bool
	}{
		{"", true},
		{"1.0", true},
		{"1.7", true},
		{"v1.1", true},
		{"2.0", false},
		{"0.9", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.announced, func(t *testing.T) {
			if got := Supports(tt.announced); got != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.announced, got, tt.want)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	v, err := Parse(Current)
	if err != nil {
		t.Fatalf("Parse(Current) returned error: %v", err)
	}
	if v.Major != 1 || v.Minor != 0 {
		t.Errorf("Current version = %s, want 1.0", v)
	}
}
