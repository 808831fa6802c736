package grpcsvc_test

import (
	"context"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sahaalaf/sashop/internal/domain"
	grpcsvc "github.com/sahaalaf/sashop/internal/service/grpc"
	"github.com/sahaalaf/sashop/internal/service/orders"
	"github.com/sahaalaf/sashop/internal/storage/memory"
)

const bufSize = 1024 * 1024

type testEnv struct {
	client   *grpcsvc.Client
	products domain.ProductRepository
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	svc := orders.NewService(
		memory.NewUnitOfWork(store),
		products,
		memory.NewOrderRepository(store),
		memory.NewTimelineRepository(store),
	)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(svc, memory.NewIdempotencyRepository(), loggerForTests()))
	go func() {
		_ = server.Serve(listener)
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{client: grpcsvc.NewClient(conn), products: products}
}

func (e *testEnv) seed(t *testing.T, id, name string, priceMinor int64, qty int32) {
	t.Helper()
	require.NoError(t, e.products.Create(context.Background(), domain.Product{
		ID: id, Name: name, PriceMinor: priceMinor, Quantity: qty,
	}))
}

func (e *testEnv) onHand(t *testing.T, id string) int32 {
	t.Helper()
	p, err := e.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func createOrderRequest(t *testing.T, userID string, items ...any) *structpb.Struct {
	t.Helper()
	return mustStruct(t, map[string]any{
		"userId": userID,
		"items":  items,
		"shippingInfo": map[string]any{
			"name":       "Jane Doe",
			"address":    "1 Main St",
			"city":       "Springfield",
			"postalCode": "12345",
			"country":    "US",
			"phone":      "+1-555-0100",
			"email":      "jane@example.com",
		},
		"paymentMethod": "cod",
	})
}

func line(productID string, qty int) map[string]any {
	return map[string]any{"productId": productID, "quantity": qty}
}

func orderField(resp *structpb.Struct) map[string]any {
	return resp.AsMap()["order"].(map[string]any)
}

func idemCtx(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", key)
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 10)
	env.seed(t, "p-b", "Phone B", 1000, 10)

	resp, err := env.client.CreateOrder(context.Background(),
		createOrderRequest(t, "u-1", line("p-a", 2), map[string]any{"_id": "p-b", "quantity": 1}))
	require.NoError(t, err)

	order := orderField(resp)
	require.NotEmpty(t, order["id"])
	require.Equal(t, "processing", order["status"])
	require.Equal(t, float64(2000), order["itemsPriceMinor"])
	require.Equal(t, float64(2500), order["totalPriceMinor"])
	require.Equal(t, int32(8), env.onHand(t, "p-a"))
	require.Equal(t, int32(9), env.onHand(t, "p-b"))
}

func TestCreateOrder_ErrorCodes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 1)

	tests := []struct {
		name string
		req  *structpb.Struct
		code codes.Code
	}{
		{name: "insufficient stock", req: createOrderRequest(t, "u-1", line("p-a", 2)), code: codes.FailedPrecondition},
		{name: "unknown product", req: createOrderRequest(t, "u-1", line("ghost", 1)), code: codes.NotFound},
		{name: "no items", req: createOrderRequest(t, "u-1"), code: codes.InvalidArgument},
		{name: "no user", req: createOrderRequest(t, "", line("p-a", 1)), code: codes.InvalidArgument},
		{name: "fractional quantity", req: createOrderRequest(t, "u-1", map[string]any{"productId": "p-a", "quantity": 1.5}), code: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.CreateOrder(context.Background(), tt.req)
			require.Equal(t, tt.code, status.Code(err), err)
		})
	}
	require.Equal(t, int32(1), env.onHand(t, "p-a"))
}

func TestCreateOrder_Idempotency(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 10)

	req := createOrderRequest(t, "u-1", line("p-a", 2))
	first, err := env.client.CreateOrder(idemCtx("key-1"), req)
	require.NoError(t, err)

	second, err := env.client.CreateOrder(idemCtx("key-1"), req)
	require.NoError(t, err)
	require.Equal(t, orderField(first)["id"], orderField(second)["id"])
	require.Equal(t, int32(8), env.onHand(t, "p-a"))

	_, err = env.client.CreateOrder(idemCtx("key-1"), createOrderRequest(t, "u-1", line("p-a", 3)))
	require.Equal(t, codes.AlreadyExists, status.Code(err))
	require.Equal(t, int32(8), env.onHand(t, "p-a"))

	third, err := env.client.CreateOrder(idemCtx("key-2"), req)
	require.NoError(t, err)
	require.NotEqual(t, orderField(first)["id"], orderField(third)["id"])
	require.Equal(t, int32(6), env.onHand(t, "p-a"))
}

func TestCreateOrder_IdempotentFailureIsReplayed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 1)

	req := createOrderRequest(t, "u-1", line("p-a", 2))
	_, err := env.client.CreateOrder(idemCtx("key-fail"), req)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, again := env.client.CreateOrder(idemCtx("key-fail"), req)
	require.Equal(t, codes.FailedPrecondition, status.Code(again))
	require.Equal(t, status.Convert(err).Message(), status.Convert(again).Message())
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 5)

	created, err := env.client.CreateOrder(context.Background(), createOrderRequest(t, "u-1", line("p-a", 5)))
	require.NoError(t, err)
	orderID := orderField(created)["id"].(string)
	require.Equal(t, int32(0), env.onHand(t, "p-a"))

	for range 2 {
		resp, err := env.client.UpdateOrderStatus(context.Background(),
			mustStruct(t, map[string]any{"orderId": orderID, "status": "Cancelled", "reason": "customer request"}))
		require.NoError(t, err)
		require.Equal(t, "cancelled", orderField(resp)["status"])
		require.Equal(t, int32(5), env.onHand(t, "p-a"))
	}

	_, err = env.client.UpdateOrderStatus(context.Background(), mustStruct(t, map[string]any{"orderId": orderID, "status": "shipped"}))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = env.client.UpdateOrderStatus(context.Background(), mustStruct(t, map[string]any{"orderId": orderID, "status": "lost"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.UpdateOrderStatus(context.Background(), mustStruct(t, map[string]any{"orderId": "missing", "status": "shipped"}))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.UpdateOrderStatus(context.Background(), mustStruct(t, map[string]any{"status": "shipped"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCheckStock(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 3)

	resp, err := env.client.CheckStock(context.Background(), mustStruct(t, map[string]any{
		"items": []any{line("p-a", 2), line("ghost", 1)},
	}))
	require.NoError(t, err)

	body := resp.AsMap()
	require.Equal(t, false, body["inStock"])
	require.Len(t, body["results"], 2)
	outOfStock := body["outOfStockItems"].([]any)
	require.Len(t, outOfStock, 1)
	require.Equal(t, domain.StockReasonNotFound, outOfStock[0].(map[string]any)["reason"])

	_, err = env.client.CheckStock(context.Background(), mustStruct(t, map[string]any{"items": []any{}}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, "p-a", "Phone A", 500, 3)

	created, err := env.client.CreateOrder(context.Background(), createOrderRequest(t, "u-1", line("p-a", 1)))
	require.NoError(t, err)
	orderID := orderField(created)["id"].(string)

	resp, err := env.client.GetOrder(context.Background(), mustStruct(t, map[string]any{"orderId": orderID}))
	require.NoError(t, err)
	require.Equal(t, orderID, orderField(resp)["id"])
	timeline := resp.AsMap()["timeline"].([]any)
	require.NotEmpty(t, timeline)
	require.Equal(t, domain.TimelineOrderCreated, timeline[0].(map[string]any)["type"])

	_, err = env.client.GetOrder(context.Background(), mustStruct(t, map[string]any{"orderId": "missing"}))
	require.Equal(t, codes.NotFound, status.Code(err))
}
