// Package cryptoutil は取引の正規化エンコードとRSA署名の生成・検証を提供する。
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"transaction-certification-service/internal/domain"
)

// centsDigits は正規化フォーマットにおける金額フィールドの固定幅。
// クライアント実装と共有している値であり、勝手に広げてはならない。
const centsDigits = 9

const maxCents = 999999999 // 9桁で表現できる上限

// Cents は金額をセントに変換する。floor(amount * 100)。
// 負値および9桁を超える値はErrAmountOutOfRangeを返す。
func Cents(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).Floor().IntPart()
	if cents < 0 || cents > maxCents {
		return 0, domain.ErrAmountOutOfRange
	}
	return cents, nil
}

// Encode は取引の正規化バイト列を生成する。
// 両口座番号の前後空白を除去し、セントを9桁ゼロ埋め10進文字列にして
// sender || receiver || paddedCents の順に区切りなしで連結する。
// この出力はクライアントの独立実装とバイト単位で一致しなければならない。
func Encode(senderAccountNumber, receiverAccountNumber string, cents int64) ([]byte, error) {
	if cents < 0 || cents > maxCents {
		return nil, domain.ErrAmountOutOfRange
	}
	sender := strings.TrimSpace(senderAccountNumber)
	receiver := strings.TrimSpace(receiverAccountNumber)
	return []byte(fmt.Sprintf("%s%s%0*d", sender, receiver, centsDigits, cents)), nil
}

// Hash は正規化バイト列のSHA-256を16進文字列で返す。
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
