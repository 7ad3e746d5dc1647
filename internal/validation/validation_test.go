package validation

import (
	"testing"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("title", "Logo design"),
		ValidAmount("budget", "150.00"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("title", ""),
		ValidAmount("budget", "-5"),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"1.00", true},
		{"0.50", true},
		{"100", true},
		{"2500.99", true},
		{"", true}, // Use Required for mandatory fields

		// Invalid
		{"abc", false},
		{"-1.00", false},
		{"0", false},
		{"0.00", false},
		{"1.2.3", false},
		{"0.001", false}, // Sub-cent precision
	}

	for _, tc := range tests {
		err := ValidAmount("amount", tc.value)()
		valid := err == nil
		if valid != tc.valid {
			t.Errorf("ValidAmount(%q) valid=%v, want %v", tc.value, valid, tc.valid)
		}
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}

func TestMinLength(t *testing.T) {
	if err := MinLength("message", "I can do this in 3 days", 10)(); err != nil {
		t.Error("Expected no error for string over minimum")
	}
	if err := MinLength("message", "too short", 10)(); err == nil {
		t.Error("Expected error for string under minimum")
	}
	// Empty values pass; Required covers mandatory fields
	if err := MinLength("message", "", 10)(); err != nil {
		t.Error("Expected no error for empty value")
	}
}
