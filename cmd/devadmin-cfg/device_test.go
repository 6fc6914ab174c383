package main

import "testing"

func TestIsDirectAddress(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"192.168.4.1", true},
		{"fe80::1", true},
		{"10.0.0.7:8080", true},
		{"http://kitchen.local", true},
		{"dev.example.com", true},
		{"kitchen", false},
		{"kitchen.local", false},
	}
	for _, tt := range tests {
		if got := isDirectAddress(tt.target); got != tt.want {
			t.Errorf("isDirectAddress(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}
