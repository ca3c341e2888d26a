package domain

import "time"

// Certificate は取引証明書エンティティを表す。取引と1:1で発行され、以後変更されない。
type Certificate struct {
	ID            string
	TransactionID string
	SerialNumber  string // 128ビット乱数の16進表現
	IssuerDN      string
	SubjectDN     string
	CASignature   string // Base64
	Envelope      string // 3セクション構成のエンベロープ全文
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Expired は証明書が失効しているかどうかを返す。
func (c *Certificate) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// CertificateAuthority は認証局のメタデータを表す。
// activeな行は常に高々1件。ローテーションでは行を編集せず置き換える。
type CertificateAuthority struct {
	ID            string
	Name          string
	Organization  string
	Country       string
	PublicKey     string // PEM
	Fingerprint   string // 公開鍵のSHA-256（16進）
	KeySize       int
	CustodyKeyID  string // KeyCustody上の秘密鍵ID
	Active        bool
	EstablishedAt time.Time
}

// DistinguishedName は証明書のIssuer DNを組み立てる。
func (ca *CertificateAuthority) DistinguishedName() string {
	return "CN=" + ca.Name + ", O=" + ca.Organization + ", C=" + ca.Country
}
