// Package grpcsvc — gRPC фасад sashop.v1.OrderService поверх сервиса заказов.
package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/service/orders"
)

// Orders — операции сервиса заказов, доступные через gRPC.
type Orders interface {
	CheckStock(ctx context.Context, requests []domain.StockRequest) (domain.StockReport, error)
	PlaceOrder(ctx context.Context, cmd orders.PlaceOrderCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd orders.UpdateStatusCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.OrderDetails, error)
}

// OrderService реализует OrderServiceServer.
type OrderService struct {
	orders   Orders
	idemRepo domain.IdempotencyRepository
	idemTTL  time.Duration
	logger   *log.Entry
}

var _ OrderServiceServer = (*OrderService)(nil)

// NewOrderService конструирует сервис с зависимостями. idemRepo может быть nil.
func NewOrderService(svc Orders, idemRepo domain.IdempotencyRepository, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{
		orders:   svc,
		idemRepo: idemRepo,
		idemTTL:  domain.DefaultIdempotencyTTL,
		logger:   logger,
	}
}

// CreateOrder атомарно создаёт заказ и списывает остатки.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var msg createOrderMessage
	if err := decodeStruct(req, &msg); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	return s.withIdempotency(ctx, MethodCreateOrder, req, func(ctx context.Context, key string) (*structpb.Struct, error) {
		order, err := s.orders.PlaceOrder(ctx, msg.command(key))
		if err != nil {
			return nil, s.toStatus(err, "CreateOrder", "failed to create order")
		}
		return s.respond(map[string]any{"order": toOrderMessage(order)})
	})
}

// UpdateOrderStatus меняет статус; отмена возвращает остатки на склад.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var msg updateStatusMessage
	if err := decodeStruct(req, &msg); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if strings.TrimSpace(msg.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	order, err := s.orders.UpdateStatus(ctx, orders.UpdateStatusCommand{
		OrderID: strings.TrimSpace(msg.OrderID),
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(msg.Status))),
		Reason:  msg.Reason,
	})
	if err != nil {
		return nil, s.toStatus(err, "UpdateOrderStatus", "failed to update order status")
	}
	return s.respond(map[string]any{"order": toOrderMessage(order)})
}

// CheckStock — рекомендательная проверка корзины.
func (s *OrderService) CheckStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var msg checkStockMessage
	if err := decodeStruct(req, &msg); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	requests := make([]domain.StockRequest, 0, len(msg.Items))
	for _, item := range msg.Items {
		requests = append(requests, domain.StockRequest{ProductID: item.reference(), Quantity: item.Quantity})
	}
	report, err := s.orders.CheckStock(ctx, requests)
	if err != nil {
		return nil, s.toStatus(err, "CheckStock", "failed to check stock")
	}
	return s.respond(map[string]any{
		"inStock":         report.InStock,
		"results":         toStockResults(report.Results),
		"outOfStockItems": toStockResults(report.OutOfStock),
	})
}

// GetOrder возвращает состояние заказа и таймлайн событий.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var msg getOrderMessage
	if err := decodeStruct(req, &msg); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if strings.TrimSpace(msg.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	details, err := s.orders.GetOrder(ctx, strings.TrimSpace(msg.OrderID))
	if err != nil {
		return nil, s.toStatus(err, "GetOrder", "failed to load order")
	}
	timeline := make([]timelineMessage, 0, len(details.Timeline))
	for _, event := range details.Timeline {
		timeline = append(timeline, timelineMessage{
			Type:     event.Type,
			Reason:   event.Reason,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return s.respond(map[string]any{
		"order":    toOrderMessage(details.Order),
		"timeline": timeline,
	})
}

func (s *OrderService) respond(body any) (*structpb.Struct, error) {
	out, err := encodeStruct(body)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// toStatus переводит доменную ошибку в gRPC статус.
func (s *OrderService) toStatus(err error, operation, internalMsg string) error {
	var insufficient *domain.InsufficientStockError
	var missingProduct *domain.ProductNotFoundError

	switch {
	case errors.As(err, &insufficient):
		return status.Error(codes.FailedPrecondition, insufficient.Error())
	case errors.As(err, &missingProduct):
		return status.Error(codes.NotFound, missingProduct.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrOrderTransitionNotAllowed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("operation", operation).Error(internalMsg)
		return status.Error(codes.Internal, internalMsg)
	}
}

const (
	idempotencyKeyHeader    = "idempotency-key"
	idempotencyStoreTimeout = 5 * time.Second
)

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler не больше одного раза на ключ из метаданных.
// Без ключа или без хранилища handler выполняется как обычно.
func (s *OrderService) withIdempotency(
	ctx context.Context,
	method string,
	req proto.Message,
	handler func(ctx context.Context, key string) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	key := readIdempotencyKey(ctx)
	if key == "" || s.idemRepo == nil {
		return handler(ctx, key)
	}

	logger := s.logger.WithFields(log.Fields{"idempotency_key": key, "method": method})
	reqHash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		logger.WithError(err).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(ctx, key, reqHash, time.Now().UTC().Add(s.idemTTL))
	if err != nil {
		return s.replayIdempotency(logger, err, record)
	}

	resp, runErr := handler(ctx, key)

	// Результат сохраняется и после отмены вызова клиентом.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyStoreTimeout)
	defer cancel()

	if runErr != nil {
		s.cacheIdempotencyFailure(storeCtx, logger, key, runErr)
		return nil, runErr
	}

	data, err := protojson.Marshal(resp)
	if err == nil {
		err = s.idemRepo.MarkDone(storeCtx, key, data, int(codes.OK))
	}
	if err != nil {
		logger.WithError(err).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

// retryableCode — коды, после которых повтор с тем же ключом должен выполниться заново.
func retryableCode(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unavailable, codes.Unknown, codes.Canceled,
		codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func (s *OrderService) replayIdempotency(logger *log.Entry, createErr error, record domain.IdempotencyRecord) (*structpb.Struct, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.ResponseBody) == 0 {
				return nil, status.Error(codes.Internal, "idempotency cache is empty")
			}
			resp := new(structpb.Struct)
			if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
				logger.WithError(err).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func (s *OrderService) cacheIdempotencyFailure(ctx context.Context, logger *log.Entry, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	if retryableCode(code) {
		if err := s.idemRepo.Release(ctx, key); err != nil {
			logger.WithError(err).Warn("failed to release idempotency key")
		}
		return
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		logger.WithError(err).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := s.idemRepo.MarkFailed(ctx, key, payload, int(code)); err != nil {
		logger.WithError(err).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCode(int64(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = fallback
				}
				return status.Error(code, payload.Message)
			}
		}
	}
	if code, ok := grpcCode(int64(record.HTTPStatus)); ok && code != codes.OK {
		return status.Error(code, fallback)
	}
	return status.Error(codes.Internal, fallback)
}

func grpcCode(value int64) (codes.Code, bool) {
	if value < int64(codes.OK) || value > int64(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(idempotencyKeyHeader) {
		if key := strings.TrimSpace(value); key != "" {
			return key
		}
	}
	return ""
}

func buildIdempotencyRequestHash(method string, req proto.Message) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
