package internal

import "testing"

func TestDeviceFingerprint(t *testing.T) {
	a := DeviceFingerprint("Mozilla/5.0", "10.0.0.1")
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if a != DeviceFingerprint("Mozilla/5.0", "10.0.0.1") {
		t.Fatal("fingerprint must be stable")
	}
	if a == DeviceFingerprint("Mozilla/5.0", "10.0.0.2") {
		t.Fatal("fingerprint must depend on ip")
	}
	if DeviceFingerprint("", "") != UnknownDevice {
		t.Fatal("expected unknown for empty inputs")
	}
}

func TestParseUserAgent(t *testing.T) {
	info := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if info.Browser != "Chrome" || info.OS != "Windows" || info.Type != "desktop" {
		t.Fatalf("unexpected desktop classification: %+v", info)
	}

	mobile := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	if mobile.Type != "mobile" {
		t.Fatalf("expected mobile, got %+v", mobile)
	}

	if ParseUserAgent("").Type != "unknown" {
		t.Fatal("expected unknown type for empty user agent")
	}
}

func TestTokenDigest(t *testing.T) {
	if got := TokenDigest("abc"); len(got) != 8 {
		t.Fatalf("expected 8 hex chars, got %q", got)
	}
}
