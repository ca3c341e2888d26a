package custody

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPKMSStore はCloud KMSによるサインオンリーの鍵保管バックエンド。
// 鍵素材はKMSの外に出ない。鍵はキーリング配下に鍵IDと同名で事前に
// プロビジョニングされている前提で、StoreとRetrieveは常に失敗する。
type GCPKMSStore struct {
	client  *kms.KeyManagementClient
	keyRing string // projects/{p}/locations/{l}/keyRings/{r}
	log     *slog.Logger
}

// NewGCPKMSStore はCloud KMSバックエンドを生成する。
func NewGCPKMSStore(ctx context.Context, keyRing string, log *slog.Logger) (*GCPKMSStore, error) {
	if keyRing == "" {
		return nil, fmt.Errorf("KMS_KEY_RING is required for the gcpkms backend")
	}
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}
	return &GCPKMSStore{client: client, keyRing: keyRing, log: log}, nil
}

// Store は対応しない。Cloud KMSの鍵はサービス外で管理される。
func (s *GCPKMSStore) Store(ctx context.Context, keyID string, material []byte) error {
	return ErrStoreUnsupported
}

// Retrieve は設計上常に失敗する。
func (s *GCPKMSStore) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	s.log.WarnContext(ctx, "retrieve called on sign-only backend",
		"backend", "gcpkms",
		"key_id", keyID,
	)
	return nil, ErrRetrieveUnsupported
}

// SignWithoutExposure はCloud KMS内でRSASSA-PKCS1-v1_5/SHA-256署名を行う。
func (s *GCPKMSStore) SignWithoutExposure(ctx context.Context, keyID string, data []byte) ([]byte, error) {
	if !validKeyID(keyID) {
		return nil, ErrInvalidKeyID
	}

	digest := sha256.Sum256(data)
	req := &kmspb.AsymmetricSignRequest{
		Name: s.versionName(keyID),
		Digest: &kmspb.Digest{
			Digest: &kmspb.Digest_Sha256{Sha256: digest[:]},
		},
	}
	resp, err := s.client.AsymmetricSign(ctx, req)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("asymmetric sign: %w", err)
	}
	return resp.Signature, nil
}

// Exists は鍵IDに対応するCryptoKeyが存在するかを返す。
func (s *GCPKMSStore) Exists(ctx context.Context, keyID string) (bool, error) {
	if !validKeyID(keyID) {
		return false, ErrInvalidKeyID
	}
	_, err := s.client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{
		Name: s.keyName(keyID),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("getting crypto key: %w", err)
	}
	return true, nil
}

// ListKeyIDs はキーリング配下のCryptoKey名一覧を返す。
func (s *GCPKMSStore) ListKeyIDs(ctx context.Context) ([]string, error) {
	it := s.client.ListCryptoKeys(ctx, &kmspb.ListCryptoKeysRequest{
		Parent: s.keyRing,
	})
	var ids []string
	for {
		key, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing crypto keys: %w", err)
		}
		name := key.GetName()
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		ids = append(ids, name)
	}
	return ids, nil
}

// Close はKMSクライアントを閉じる。
func (s *GCPKMSStore) Close() error {
	return s.client.Close()
}

func (s *GCPKMSStore) keyName(keyID string) string {
	return fmt.Sprintf("%s/cryptoKeys/%s", s.keyRing, keyID)
}

func (s *GCPKMSStore) versionName(keyID string) string {
	return fmt.Sprintf("%s/cryptoKeys/%s/cryptoKeyVersions/1", s.keyRing, keyID)
}
