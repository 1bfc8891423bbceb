package reservations_service_api

import (
	"context"
	"math"
	"net"
	"testing"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/payment"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

var testScope = domain.NewScope(1, 10)

func startServer(t *testing.T) (*Client, []domain.Seat) {
	t.Helper()

	store := repository.NewMemoryStore()
	store.AddTrain(domain.Train{ID: 1, Name: "Duronto Express", Number: "12213"})
	store.AddRoute(domain.Route{ID: 10, TrainID: 1, SourceStation: "Sealdah", DestinationStation: "Puri", DepartureTime: "20:00", ArrivalTime: "04:30", PriceCents: 90000})
	seats := inventory.BuildSeats(testScope, []domain.CompartmentLayout{{Name: "S1", ClassType: "SL", Berths: []domain.BerthType{domain.BerthLower}}})
	require.NoError(t, store.SeedSeats(context.Background(), testScope, seats))

	coord := reservation.NewCoordinator(store, store, payment.NewSimulatedGateway(), config.ReservationConfig{RACCapacity: 1, MaxRetries: 3})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterReservationServiceServer(srv, NewServer(coord))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn), seats
}

func bookingRequest(t *testing.T, seatID *int64) *structpb.Struct {
	t.Helper()
	fields := map[string]any{
		"user_id":        1,
		"train_id":       1,
		"route_id":       10,
		"passenger_name": "Meera Das",
		"passenger_age":  29,
	}
	if seatID != nil {
		fields["seat_id"] = *seatID
	}
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return req
}

func TestServer_BookingLifecycle(t *testing.T) {
	client, seats := startServer(t)
	ctx := context.Background()
	seatID := seats[0].ID

	confirmed, err := client.CreateBooking(ctx, bookingRequest(t, &seatID))
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusConfirmed), confirmed.Fields["status"].GetStringValue())
	assert.Equal(t, float64(seatID), confirmed.Fields["seat_id"].GetNumberValue())

	rac, err := client.CreateBooking(ctx, bookingRequest(t, &seatID))
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusRAC), rac.Fields["status"].GetStringValue())
	assert.Equal(t, "Added to RAC. Position: 1", rac.Fields["message"].GetStringValue())

	waitlisted, err := client.CreateBooking(ctx, bookingRequest(t, nil))
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusWaitlisted), waitlisted.Fields["status"].GetStringValue())

	queue, err := client.GetRACQueue(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"train_id": structpb.NewNumberValue(1),
		"route_id": structpb.NewNumberValue(10),
	}})
	require.NoError(t, err)
	entries := queue.Fields["entries"].GetListValue().GetValues()
	require.Len(t, entries, 1)
	assert.Equal(t, rac.Fields["booking_id"].GetNumberValue(), entries[0].GetStructValue().Fields["booking_id"].GetNumberValue())

	cancelled, err := client.CancelBooking(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"booking_id": confirmed.Fields["booking_id"],
	}})
	require.NoError(t, err)
	assert.True(t, cancelled.Fields["success"].GetBoolValue())

	list, err := client.ListBookings(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id": structpb.NewNumberValue(1),
	}})
	require.NoError(t, err)
	bookings := list.Fields["bookings"].GetListValue().GetValues()
	require.Len(t, bookings, 3)

	statuses := map[string]int{}
	for _, b := range bookings {
		statuses[b.GetStructValue().Fields["status"].GetStringValue()]++
	}
	assert.Equal(t, map[string]int{"Cancelled": 1, "Promoted": 1, "Waitlisted": 1}, statuses)

	waitlist, err := client.GetWaitlist(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"train_id": structpb.NewNumberValue(1),
		"route_id": structpb.NewNumberValue(10),
	}})
	require.NoError(t, err)
	assert.Len(t, waitlist.Fields["entries"].GetListValue().GetValues(), 1)
}

func TestServer_ErrorCodes(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	req := bookingRequest(t, nil)
	req.Fields["passenger_age"] = structpb.NewNumberValue(0)
	_, err := client.CreateBooking(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req = bookingRequest(t, nil)
	req.Fields["route_id"] = structpb.NewNumberValue(404)
	_, err = client.CreateBooking(ctx, req)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.ListBookings(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	cancelled, err := client.CancelBooking(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"booking_id": structpb.NewNumberValue(12345),
	}})
	require.NoError(t, err)
	assert.False(t, cancelled.Fields["success"].GetBoolValue())
}

func TestServer_RejectsMalformedNumbers(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		value *structpb.Value
	}{
		{"fractional seat", "seat_id", structpb.NewNumberValue(1.7)},
		{"fractional user", "user_id", structpb.NewNumberValue(1.5)},
		{"age beyond int range", "passenger_age", structpb.NewNumberValue(1e300)},
		{"negative overflow", "route_id", structpb.NewNumberValue(-1e19)},
		{"not a number", "train_id", structpb.NewNumberValue(math.NaN())},
		{"string id", "user_id", structpb.NewStringValue("1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bookingRequest(t, nil)
			req.Fields[tt.field] = tt.value
			_, err := client.CreateBooking(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
			assert.Contains(t, status.Convert(err).Message(), tt.field)
		})
	}

	list, err := client.ListBookings(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id": structpb.NewNumberValue(1),
	}})
	require.NoError(t, err)
	assert.Empty(t, list.Fields["bookings"].GetListValue().GetValues(), "malformed requests must not book")

	_, err = client.CancelBooking(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"booking_id": structpb.NewNumberValue(math.Inf(1)),
	}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetWaitlist(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"train_id": structpb.NewNumberValue(1),
		"route_id": structpb.NewNumberValue(10.25),
	}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// null seat_id means "no preference"
	req := bookingRequest(t, nil)
	req.Fields["seat_id"] = structpb.NewNullValue()
	res, err := client.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusRAC), res.Fields["status"].GetStringValue())
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{&domain.ValidationError{Field: "user_id", Reason: "must be positive"}, codes.InvalidArgument},
		{domain.ErrNotFound, codes.NotFound},
		{domain.ErrConcurrencyConflict, codes.Aborted},
		{domain.ErrPersistence, codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(ToStatus(tt.err)), tt.err.Error())
	}
}
