package api

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// ForecastService is the domain surface exposed over gRPC.
type ForecastService interface {
	Generate(ctx context.Context, sku string, horizon int) ([]models.ForecastResult, error)
	Snapshot(sku, modelID string) (models.CacheEntry, error)
	Select(sku, modelID string, method models.Method) error
	SetManual(ctx context.Context, sku, modelID string, params models.Parameters) error
	Enqueue(ctx context.Context, skus []string, reason string) (int, error)
	QueueSize() int
	QueueItems() []models.QueueItem
	CacheVersion() uint64
}

var _ ForecastEngineServer = (*Handler)(nil)

// Handler adapts a ForecastService to ForecastEngineServer.
type Handler struct {
	logger  *slog.Logger
	service ForecastService
}

// NewHandler constructs the gRPC handler.
func NewHandler(logger *slog.Logger, service ForecastService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || req.SKU == "" {
		return nil, status.Error(codes.InvalidArgument, "sku is required")
	}
	if req.Horizon < 0 {
		return nil, status.Error(codes.InvalidArgument, "horizon cannot be negative")
	}
	results, err := h.service.Generate(ctx, req.SKU, req.Horizon)
	if err != nil {
		return nil, h.toStatus("Generate", err)
	}
	return &GenerateResponse{SKU: req.SKU, Results: results, CacheVersion: h.service.CacheVersion()}, nil
}

func (h *Handler) Snapshot(ctx context.Context, req *SnapshotRequest) (*SnapshotResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	entry, err := h.service.Snapshot(req.SKU, req.ModelID)
	if err != nil {
		return nil, h.toStatus("Snapshot", err)
	}
	return &SnapshotResponse{Entry: entry, CacheVersion: h.service.CacheVersion()}, nil
}

func (h *Handler) Select(ctx context.Context, req *SelectRequest) (*CacheAck, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := h.service.Select(req.SKU, req.ModelID, req.Method); err != nil {
		return nil, h.toStatus("Select", err)
	}
	return &CacheAck{CacheVersion: h.service.CacheVersion()}, nil
}

func (h *Handler) SetManual(ctx context.Context, req *SetManualRequest) (*CacheAck, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := h.service.SetManual(ctx, req.SKU, req.ModelID, req.Parameters); err != nil {
		return nil, h.toStatus("SetManual", err)
	}
	return &CacheAck{CacheVersion: h.service.CacheVersion()}, nil
}

func (h *Handler) Enqueue(ctx context.Context, req *EnqueueRequest) (*EnqueueResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	n, err := h.service.Enqueue(ctx, req.SKUs, req.Reason)
	if err != nil {
		return nil, h.toStatus("Enqueue", err)
	}
	return &EnqueueResponse{Enqueued: n, QueueSize: h.service.QueueSize()}, nil
}

func (h *Handler) QueueStatus(ctx context.Context, req *QueueStatusRequest) (*QueueStatusResponse, error) {
	items := h.service.QueueItems()
	return &QueueStatusResponse{Size: len(items), Items: items, CacheVersion: h.service.CacheVersion()}, nil
}

func (h *Handler) toStatus(method string, err error) error {
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	switch utils.KindOf(err) {
	case utils.KindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case utils.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case utils.KindUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		h.logger.Error("request failed", slog.String("method", method), slog.Any("error", err))
		return status.Error(codes.Internal, err.Error())
	}
}
