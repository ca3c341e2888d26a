package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// 生成可能なRSA鍵長。
const (
	KeySizeUser = 2048
	KeySizeCA   = 4096
)

var (
	// ErrInvalidKeyMaterial は鍵のPEM/DERが解釈できない場合のエラー。
	// 署名不一致（正常系の否定結果）とは区別される障害である。
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrUnsupportedKeySize は許可されていない鍵長が指定された場合のエラー。
	ErrUnsupportedKeySize = errors.New("unsupported key size")
)

// GenerateKeyPair はRSA鍵ペアを生成し、PEM形式で返す。
// 公開鍵はPKIX、秘密鍵はPKCS#8でエンコードする。
func GenerateKeyPair(bits int) (publicKeyPEM, privateKeyPEM string, err error) {
	if bits != KeySizeUser && bits != KeySizeCA {
		return "", "", fmt.Errorf("%w: %d", ErrUnsupportedKeySize, bits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("generating RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshaling private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshaling public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(pubPEM), string(privPEM), nil
}

// ParsePrivateKey はPEM形式のRSA秘密鍵を解釈する。PKCS#8とPKCS#1の両方を受け付ける。
func ParsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKeyMaterial)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA private key", ErrInvalidKeyMaterial)
		}
		return rsaKey, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unparseable private key", ErrInvalidKeyMaterial)
}

// ParsePublicKey はPEM形式のRSA公開鍵を解釈する。PKIXとPKCS#1の両方を受け付ける。
func ParsePublicKey(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKeyMaterial)
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA public key", ErrInvalidKeyMaterial)
		}
		return rsaKey, nil
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unparseable public key", ErrInvalidKeyMaterial)
}

// KeyBits は公開鍵PEMのRSAモジュラスのビット長を返す。
func KeyBits(publicKeyPEM string) (int, error) {
	key, err := ParsePublicKey([]byte(publicKeyPEM))
	if err != nil {
		return 0, err
	}
	return key.N.BitLen(), nil
}

// Sign はRSASSA-PKCS1-v1_5/SHA-256でデータそのものに署名する。
// ハッシュ16進文字列をUTF-8として署名してはならない（レガシー形は検証のみ対応）。
func Sign(data []byte, privateKeyPEM []byte) ([]byte, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return sig, nil
}

// Verify は署名を検証する。ダイジェストは内部で再計算する。
// 署名不一致は (false, nil)、鍵素材や署名エンコードの障害は (false, err) を返す。
func Verify(data []byte, signature []byte, publicKeyPEM []byte) (bool, error) {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false, err
	}
	if len(signature) == 0 {
		return false, errors.New("empty signature")
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		// rsa.ErrVerificationは通常の否定結果であり障害ではない
		if errors.Is(err, rsa.ErrVerification) {
			return false, nil
		}
		return false, fmt.Errorf("verifying: %w", err)
	}
	return true, nil
}

// VerifyLegacyHash はハッシュ16進文字列のバイト列を署名対象とした
// 過去レコードの署名を検証する。新規取引では使用しない。
func VerifyLegacyHash(hashHex string, signature []byte, publicKeyPEM []byte) (bool, error) {
	return Verify([]byte(hashHex), signature, publicKeyPEM)
}

// Fingerprint は公開鍵PEMのSHA-256フィンガープリントを16進文字列で返す。
func Fingerprint(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:])
}
