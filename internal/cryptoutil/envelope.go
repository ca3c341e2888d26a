package cryptoutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// 証明書エンベロープのセクション名。順序・名前ともワイヤ互換性に関わるため固定。
const (
	SectionPayload     = "CERTIFICATE PAYLOAD"
	SectionCASignature = "CA SIGNATURE"
	SectionCAPublicKey = "CA PUBLIC KEY"
)

const envelopeLineWidth = 64

// ErrMalformedEnvelope はエンベロープの構造が不正な場合のエラー。
var ErrMalformedEnvelope = errors.New("malformed certificate envelope")

// EncodeEnvelope は証明書エンベロープを組み立てる。
// ペイロード・CA署名・CA公開鍵の3セクションを固定順で、各セクションは
// BEGIN/ENDマーカーに挟まれた64桁折り返しのBase64として出力する。
func EncodeEnvelope(payload, caSignature, caPublicKey []byte) string {
	var b strings.Builder
	writeSection(&b, SectionPayload, payload)
	writeSection(&b, SectionCASignature, caSignature)
	writeSection(&b, SectionCAPublicKey, caPublicKey)
	return b.String()
}

func writeSection(b *strings.Builder, name string, data []byte) {
	fmt.Fprintf(b, "-----BEGIN %s-----\n", name)
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > envelopeLineWidth {
		b.WriteString(encoded[:envelopeLineWidth])
		b.WriteByte('\n')
		encoded = encoded[envelopeLineWidth:]
	}
	if len(encoded) > 0 {
		b.WriteString(encoded)
		b.WriteByte('\n')
	}
	fmt.Fprintf(b, "-----END %s-----\n", name)
}

// DecodeEnvelope はエンベロープから3セクションを取り出す。
func DecodeEnvelope(envelope string) (payload, caSignature, caPublicKey []byte, err error) {
	payload, err = extractSection(envelope, SectionPayload)
	if err != nil {
		return nil, nil, nil, err
	}
	caSignature, err = extractSection(envelope, SectionCASignature)
	if err != nil {
		return nil, nil, nil, err
	}
	caPublicKey, err = extractSection(envelope, SectionCAPublicKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return payload, caSignature, caPublicKey, nil
}

func extractSection(envelope, name string) ([]byte, error) {
	begin := fmt.Sprintf("-----BEGIN %s-----", name)
	end := fmt.Sprintf("-----END %s-----", name)

	start := strings.Index(envelope, begin)
	if start < 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, name)
	}
	rest := envelope[start+len(begin):]
	stop := strings.Index(rest, end)
	if stop < 0 {
		return nil, fmt.Errorf("%w: unterminated %s", ErrMalformedEnvelope, name)
	}

	body := strings.NewReplacer("\n", "", "\r", "").Replace(rest[:stop])
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, name, err)
	}
	return data, nil
}
