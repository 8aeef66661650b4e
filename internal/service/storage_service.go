package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/consult-billing/internal/config"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/version"
)

// objectPutter is the subset of *s3.Client used for receipts.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// StorageService handles object storage operations (Tigris/S3-compatible).
type StorageService struct {
	client  objectPutter
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	logger = logger.With("component", "storage")
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	// Load AWS config with static credentials
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithAppID(version.ServiceName),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint for S3-compatible storage (Tigris, MinIO, etc.)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		client:  client,
		bucket:  cfg.StorageBucket,
		enabled: true,
		logger:  logger,
	}, nil
}

// newStorageServiceWithClient is used by tests to inject a fake client.
func newStorageServiceWithClient(client objectPutter, bucket string, logger *slog.Logger) *StorageService {
	return &StorageService{
		client:  client,
		bucket:  bucket,
		enabled: true,
		logger:  logger,
	}
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// Bucket returns the configured bucket name.
func (s *StorageService) Bucket() string {
	return s.bucket
}

// Receipt is the archived record of a finished consultation.
type Receipt struct {
	SessionID            string             `json:"session_id"`
	ConsumerID           string             `json:"consumer_id"`
	ProviderID           string             `json:"provider_id"`
	SessionType          models.SessionType `json:"session_type"`
	RatePaisePerMin      int64              `json:"rate_paise_per_min"`
	SecondsElapsed       int64              `json:"seconds_elapsed"`
	TotalCostPaise       int64              `json:"total_cost_paise"`
	FinalSettlementPaise int64              `json:"final_settlement_paise"`
	UnbilledSeconds      int64              `json:"unbilled_seconds"`
	EndReason            string             `json:"end_reason"`
	StartedAt            time.Time          `json:"started_at"`
	EndedAt              *time.Time         `json:"ended_at,omitempty"`
	GeneratedAt          time.Time          `json:"generated_at"`
}

// ReceiptKey returns the object key for a session receipt.
func ReceiptKey(consumerID, sessionID string) string {
	return fmt.Sprintf("receipts/%s/%s.json", consumerID, sessionID)
}

// StoreReceipt writes the receipt as JSON. It is a no-op when storage is
// disabled.
func (s *StorageService) StoreReceipt(ctx context.Context, r *Receipt) error {
	if !s.enabled {
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	key := ReceiptKey(r.ConsumerID, r.SessionID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store receipt: %w", err)
	}

	s.logger.Info("stored session receipt",
		"session_id", r.SessionID,
		"key", key,
		"size_bytes", len(data),
	)
	return nil
}
