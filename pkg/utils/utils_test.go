package utils

import "testing"

func Test_checksum_is_sum_of_bytes_modulo_256(t *testing.T) {
	raw := []byte("8=FIX.4.2\x019=5\x0135=0\x01")
	sum := 0
	for _, b := range raw {
		sum += int(b)
	}

	if ChecksumValue(raw) != sum%256 {
		t.Errorf("expected %d, got %d", sum%256, ChecksumValue(raw))
	}

	if len(CreateChecksum(raw)) != 3 {
		t.Error("expected checksum to be zero padded to three digits, got: ", CreateChecksum(raw))
	}

	if CreateChecksum([]byte{1}) != "001" {
		t.Error("expected 001, got: ", CreateChecksum([]byte{1}))
	}
}

func Test_close_code_names(t *testing.T) {
	if CloseCodeName(CloseCodeUnknownSession) != "CloseCodeUnknownSession" {
		t.Error("unexpected name for unknown session close code")
	}

	if CloseCodeName(1000) != "UnknownCode" {
		t.Error("expected UnknownCode for a code outside the custom range")
	}

	if !IsKnownClientErrorCode(CloseCodeFirstNotLogon) {
		t.Error("expected first-not-logon to be a known client error code")
	}
}
