package cryptoutil

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	payload := []byte(`{"version":1,"serial":"abc"}`)
	sig := bytes.Repeat([]byte{0xAB}, 256)
	pub := []byte("-----BEGIN PUBLIC KEY-----\n...\n-----END PUBLIC KEY-----\n")

	envelope := EncodeEnvelope(payload, sig, pub)

	gotPayload, gotSig, gotPub, err := DecodeEnvelope(envelope)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Error("payload section round-trip mismatch")
	}
	if !bytes.Equal(gotSig, sig) {
		t.Error("signature section round-trip mismatch")
	}
	if !bytes.Equal(gotPub, pub) {
		t.Error("public key section round-trip mismatch")
	}
}

func TestEnvelope_SectionOrderAndWidth(t *testing.T) {
	envelope := EncodeEnvelope(bytes.Repeat([]byte{0x01}, 200), []byte("s"), []byte("p"))

	// 3セクションが固定順で並ぶこと
	iPayload := strings.Index(envelope, "-----BEGIN CERTIFICATE PAYLOAD-----")
	iSig := strings.Index(envelope, "-----BEGIN CA SIGNATURE-----")
	iPub := strings.Index(envelope, "-----BEGIN CA PUBLIC KEY-----")
	if iPayload < 0 || iSig < 0 || iPub < 0 {
		t.Fatal("missing envelope section markers")
	}
	if !(iPayload < iSig && iSig < iPub) {
		t.Error("sections out of order")
	}

	// Base64本文が64桁で折り返されていること
	for _, line := range strings.Split(envelope, "\n") {
		if strings.HasPrefix(line, "-----") || line == "" {
			continue
		}
		if len(line) > 64 {
			t.Errorf("line exceeds 64 chars: %d", len(line))
		}
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	cases := []string{
		"",
		"-----BEGIN CERTIFICATE PAYLOAD-----\nAAAA\n", // 終端なし
		"-----BEGIN CERTIFICATE PAYLOAD-----\n!!!!\n-----END CERTIFICATE PAYLOAD-----\n",
	}
	for _, c := range cases {
		if _, _, _, err := DecodeEnvelope(c); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("want ErrMalformedEnvelope, got %v", err)
		}
	}
}
