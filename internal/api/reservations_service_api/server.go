package reservations_service_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements ReservationServiceServer on top of the coordinator.
type Server struct {
	reservations reservation.ReservationUseCase
}

func NewServer(reservations reservation.ReservationUseCase) *Server {
	return &Server{reservations: reservations}
}

func (s *Server) CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req: req}
	input := reservation.CreateBookingInput{
		UserID:        f.integer("user_id"),
		TrainID:       f.integer("train_id"),
		RouteID:       f.integer("route_id"),
		PassengerName: req.GetFields()["passenger_name"].GetStringValue(),
		PassengerAge:  int(f.integer("passenger_age")),
		SeatID:        f.optionalInteger("seat_id"),
	}
	if f.err != nil {
		return nil, f.err
	}

	result, err := s.reservations.CreateBooking(ctx, input)
	if err != nil {
		return nil, ToStatus(err)
	}
	return toStruct(result)
}

func (s *Server) CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req: req}
	bookingID := f.integer("booking_id")
	if f.err != nil {
		return nil, f.err
	}
	ok, err := s.reservations.CancelBooking(ctx, bookingID)
	if err != nil {
		return nil, ToStatus(err)
	}
	message := "Booking cancelled"
	if !ok {
		message = "Booking not found or already cancelled"
	}
	return structpb.NewStruct(map[string]any{"success": ok, "message": message})
}

func (s *Server) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req: req}
	userID := f.integer("user_id")
	if f.err != nil {
		return nil, f.err
	}
	bookings, err := s.reservations.ListBookingsForUser(ctx, userID)
	if err != nil {
		return nil, ToStatus(err)
	}
	if bookings == nil {
		bookings = []domain.BookingDetails{}
	}
	return toStruct(map[string]any{"bookings": bookings})
}

func (s *Server) GetRACQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req: req}
	trainID, routeID := f.integer("train_id"), f.integer("route_id")
	if f.err != nil {
		return nil, f.err
	}
	entries, err := s.reservations.GetRACQueue(ctx, trainID, routeID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return entriesStruct(entries)
}

func (s *Server) GetWaitlist(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req: req}
	trainID, routeID := f.integer("train_id"), f.integer("route_id")
	if f.err != nil {
		return nil, f.err
	}
	entries, err := s.reservations.GetWaitlist(ctx, trainID, routeID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return entriesStruct(entries)
}

func entriesStruct(entries []domain.QueueEntry) (*structpb.Struct, error) {
	if entries == nil {
		entries = []domain.QueueEntry{}
	}
	return toStruct(map[string]any{"entries": entries})
}

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// fields reads integer ids out of a request struct and keeps the first
// malformed one as an InvalidArgument error. Missing and null fields read as
// zero and are left to the coordinator's validation.
type fields struct {
	req *structpb.Struct
	err error
}

func (f *fields) integer(key string) int64 {
	if v := f.optionalInteger(key); v != nil {
		return *v
	}
	return 0
}

func (f *fields) optionalInteger(key string) *int64 {
	if f.err != nil {
		return nil
	}
	switch kind := f.req.GetFields()[key].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > maxExactInt {
			f.err = status.Errorf(codes.InvalidArgument, "%s must be a whole number, got %v", key, n)
			return nil
		}
		v := int64(n)
		return &v
	default:
		f.err = status.Errorf(codes.InvalidArgument, "%s must be a number", key)
		return nil
	}
}

// toStruct converts a value through its JSON form so the gRPC and REST
// surfaces share field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// ToStatus maps the domain error taxonomy onto gRPC status codes.
func ToStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrSeatUnavailable):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}
}

var _ ReservationServiceServer = (*Server)(nil)
