package urlcheck

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	// WHAT: Scheme and address-range policy over representative URLs.
	// WHY: This is the only gate between a hosted API and internal targets.
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"public https", "https://example.com/contact", nil},
		{"public http", "http://example.com", nil},
		{"ftp scheme", "ftp://example.com/file", ErrUnsafeScheme},
		{"file scheme", "file:///etc/passwd", ErrUnsafeScheme},
		{"loopback", "http://127.0.0.1:8080/", ErrPrivateAddress},
		{"rfc1918 ten", "http://10.1.2.3/", ErrPrivateAddress},
		{"rfc1918 oneseventwo", "http://172.20.0.1/", ErrPrivateAddress},
		{"rfc1918 oneninetwo", "http://192.168.1.1/admin", ErrPrivateAddress},
		{"metadata endpoint", "http://169.254.169.254/latest/", ErrPrivateAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.url)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate(%q) = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NoHost(t *testing.T) {
	// WHAT: A URL without a host is rejected.
	// WHY: The fetcher would otherwise produce a confusing transport error.
	if err := Validate("https:///path-only"); err == nil {
		t.Fatal("expected error for host-less URL")
	}
}
