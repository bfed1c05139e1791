package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qrpos-order-services/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	proofMaxSide = 1600
	proofQuality = 82
)

var ErrProofStoreDisabled = errors.New("payment proof storage is not configured")

type objectWriter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string, cacheControl string) (string, error)
	DeleteURL(ctx context.Context, raw string) error
}

// ProofStore normalizes uploaded transfer receipts and stores them per
// outlet and order.
type ProofStore struct {
	objects objectWriter
	logger  *zap.Logger
}

func NewProofStore(objects objectWriter, logger *zap.Logger) *ProofStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProofStore{objects: objects, logger: logger}
}

func ProofKey(outletID int64, orderCode, id string) string {
	return fmt.Sprintf("outlets/%d/orders/%s/proof-%s.jpg", outletID, strings.ToUpper(orderCode), id)
}

type StoredProof struct {
	Key string
	URL string
}

// SaveProof re-encodes data as an upright JPEG and uploads it. It never
// touches earlier proofs; the caller discards whichever object loses once
// the payment row is committed.
func (s *ProofStore) SaveProof(ctx context.Context, outletID int64, orderCode string, data []byte) (StoredProof, error) {
	if s == nil || s.objects == nil {
		return StoredProof{}, ErrProofStoreDisabled
	}
	normalized, meta, err := utils.NormalizeProofImage(data, proofMaxSide, proofQuality)
	if err != nil {
		return StoredProof{}, err
	}

	key := ProofKey(outletID, orderCode, uuid.NewString())
	url, err := s.objects.PutObject(ctx, key, normalized, "image/jpeg", "")
	if err != nil {
		return StoredProof{}, fmt.Errorf("upload payment proof: %w", err)
	}
	s.logger.Info("payment proof stored",
		zap.Int64("outletId", outletID),
		zap.String("orderCode", orderCode),
		zap.String("key", key),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
		zap.String("sourceFormat", meta.Format),
	)
	return StoredProof{Key: key, URL: url}, nil
}

// Discard removes a proof object. Failures are logged only; a leftover
// object is harmless once no payment points at it.
func (s *ProofStore) Discard(ctx context.Context, url string) {
	if s == nil || s.objects == nil || url == "" {
		return
	}
	if err := s.objects.DeleteURL(ctx, url); err != nil {
		s.logger.Warn("payment proof not removed", zap.String("url", url), zap.Error(err))
	}
}
