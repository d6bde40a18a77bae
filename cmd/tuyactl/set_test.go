package main

import "testing"

func TestParseAssignments(t *testing.T) {
	dps, err := parseAssignments([]string{"1=true", "2=42", "3=hello"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	if dps["1"] != true {
		t.Errorf(`dps["1"] = %v, want true`, dps["1"])
	}
	if dps["2"] != float64(42) {
		t.Errorf(`dps["2"] = %v, want 42`, dps["2"])
	}
	if dps["3"] != "hello" {
		t.Errorf(`dps["3"] = %v, want "hello"`, dps["3"])
	}
}

func TestParseAssignmentsRejectsMissingEquals(t *testing.T) {
	if _, err := parseAssignments([]string{"no-equals-sign"}); err == nil {
		t.Fatal("parseAssignments() = nil error for an argument with no '=', want an error")
	}
}
