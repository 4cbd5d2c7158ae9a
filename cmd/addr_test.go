package cmd

import (
	"os"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:8000", false},
		{"localhost:8080", false},
		{":8000", false},
		{"0.0.0.0:80", false},
		{"[::1]:8000", false},
		{"example.com:8000", false},
		{":0", false}, // auto-assign
		{"127.0.0.1", true},
		{"127.0.0.1:", true},
		{":notaport", true},
		{":70000", true},
		{":-1", true},
		{"bad host:8000", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseServeAddr(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"default", []string{"cookchat", "serve"}, "127.0.0.1:8000", false},
		{"positional", []string{"cookchat", "serve", ":9000"}, ":9000", false},
		{"flag", []string{"cookchat", "serve", "--addr", ":9000"}, ":9000", false},
		{"single dash", []string{"cookchat", "serve", "-addr", "0.0.0.0:8080"}, "0.0.0.0:8080", false},
		{"positional invalid", []string{"cookchat", "serve", "nonsense"}, "", true},
		{"flag invalid port", []string{"cookchat", "serve", "--addr", ":99999"}, "", true},
	}

	orig := os.Args
	defer func() { os.Args = orig }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			got, err := parseServeAddr()
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseServeAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseServeAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
