package custody

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
)

// AWSKMSStore はAWS KMSによるサインオンリーの鍵保管バックエンド。
// 鍵はエイリアス（prefix + keyID）で解決する。GCPバックエンドと同じく
// 鍵素材の持ち込み・取り出しには対応しない。
type AWSKMSStore struct {
	client      *kms.KMS
	aliasPrefix string // 例: alias/txcert/
	log         *slog.Logger
}

// NewAWSKMSStore はAWS KMSバックエンドを生成する。
func NewAWSKMSStore(region, aliasPrefix string, log *slog.Logger) (*AWSKMSStore, error) {
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION is required for the awskms backend")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return &AWSKMSStore{
		client:      kms.New(sess),
		aliasPrefix: aliasPrefix,
		log:         log,
	}, nil
}

// Store は対応しない。
func (s *AWSKMSStore) Store(ctx context.Context, keyID string, material []byte) error {
	return ErrStoreUnsupported
}

// Retrieve は設計上常に失敗する。
func (s *AWSKMSStore) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	s.log.WarnContext(ctx, "retrieve called on sign-only backend",
		"backend", "awskms",
		"key_id", keyID,
	)
	return nil, ErrRetrieveUnsupported
}

// SignWithoutExposure はKMS内でRSASSA-PKCS1-v1_5/SHA-256署名を行う。
func (s *AWSKMSStore) SignWithoutExposure(ctx context.Context, keyID string, data []byte) ([]byte, error) {
	if !validKeyID(keyID) {
		return nil, ErrInvalidKeyID
	}

	digest := sha256.Sum256(data)
	out, err := s.client.SignWithContext(ctx, &kms.SignInput{
		KeyId:            aws.String(s.alias(keyID)),
		Message:          digest[:],
		MessageType:      aws.String(kms.MessageTypeDigest),
		SigningAlgorithm: aws.String(kms.SigningAlgorithmSpecRsassaPkcs1V15Sha256),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("kms sign: %w", err)
	}
	return out.Signature, nil
}

// Exists はエイリアスに対応する鍵が存在するかを返す。
func (s *AWSKMSStore) Exists(ctx context.Context, keyID string) (bool, error) {
	if !validKeyID(keyID) {
		return false, ErrInvalidKeyID
	}
	_, err := s.client.DescribeKeyWithContext(ctx, &kms.DescribeKeyInput{
		KeyId: aws.String(s.alias(keyID)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("describing key: %w", err)
	}
	return true, nil
}

// ListKeyIDs はprefix配下のエイリアス一覧を返す。
func (s *AWSKMSStore) ListKeyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.client.ListAliasesPagesWithContext(ctx, &kms.ListAliasesInput{},
		func(page *kms.ListAliasesOutput, lastPage bool) bool {
			for _, alias := range page.Aliases {
				name := aws.StringValue(alias.AliasName)
				if strings.HasPrefix(name, s.aliasPrefix) {
					ids = append(ids, strings.TrimPrefix(name, s.aliasPrefix))
				}
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	return ids, nil
}

func (s *AWSKMSStore) alias(keyID string) string {
	return s.aliasPrefix + keyID
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == kms.ErrCodeNotFoundException
	}
	return false
}
