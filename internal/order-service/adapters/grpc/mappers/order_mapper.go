// Package mappers converts between domain orders and the structpb messages
// carried by the OrderStore gRPC service.
//
// Every field travels as a string value: versions would lose precision as
// JSON numbers past 2^53 and amounts are decimals.
package mappers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
)

const (
	fieldID              = "id"
	fieldStatus          = "status"
	fieldPaymentStatus   = "payment_status"
	fieldVersion         = "version"
	fieldExpectedVersion = "expected_version"
	fieldProgramTitle    = "program_title"
	fieldEmail           = "email"
	fieldAmount          = "amount"
	fieldCreatedAt       = "created_at"
	fieldUpdatedAt       = "updated_at"
)

// OrderToProto encodes a full order snapshot.
func OrderToProto(o domain.Order) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldID:            structpb.NewStringValue(o.ID),
		fieldStatus:        structpb.NewStringValue(string(o.Status)),
		fieldPaymentStatus: structpb.NewStringValue(string(o.PaymentStatus)),
		fieldVersion:       structpb.NewStringValue(strconv.FormatInt(o.Version, 10)),
		fieldProgramTitle:  structpb.NewStringValue(o.ProgramTitle),
		fieldEmail:         structpb.NewStringValue(o.Email),
		fieldAmount:        structpb.NewStringValue(o.Amount.String()),
	}
	if !o.CreatedAt.IsZero() {
		fields[fieldCreatedAt] = structpb.NewStringValue(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	if !o.UpdatedAt.IsZero() {
		fields[fieldUpdatedAt] = structpb.NewStringValue(o.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

// OrderFromProto decodes a snapshot written by OrderToProto. Missing fields
// decode to zero values.
func OrderFromProto(s *structpb.Struct) (domain.Order, error) {
	if s == nil {
		return domain.Order{}, fmt.Errorf("mappers: empty order message")
	}
	o := domain.Order{
		ID:            stringField(s, fieldID),
		Status:        domain.OrderStatus(stringField(s, fieldStatus)),
		PaymentStatus: domain.PaymentStatus(stringField(s, fieldPaymentStatus)),
		ProgramTitle:  stringField(s, fieldProgramTitle),
		Email:         stringField(s, fieldEmail),
	}

	var err error
	if o.Version, err = int64Field(s, fieldVersion); err != nil {
		return domain.Order{}, err
	}
	if raw := stringField(s, fieldAmount); raw != "" {
		if o.Amount, err = decimal.NewFromString(raw); err != nil {
			return domain.Order{}, fmt.Errorf("mappers: parse amount %q: %w", raw, err)
		}
	}
	if o.CreatedAt, err = timeField(s, fieldCreatedAt); err != nil {
		return domain.Order{}, err
	}
	if o.UpdatedAt, err = timeField(s, fieldUpdatedAt); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// IDToProto encodes a ReadOrder request.
func IDToProto(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldID: structpb.NewStringValue(id),
	}}
}

func IDFromProto(s *structpb.Struct) string {
	return stringField(s, fieldID)
}

// UpdateToProto encodes a ConditionalUpdate request.
func UpdateToProto(id string, t domain.Transition, expectedVersion int64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldID:              structpb.NewStringValue(id),
		fieldStatus:          structpb.NewStringValue(string(t.Status)),
		fieldPaymentStatus:   structpb.NewStringValue(string(t.PaymentStatus)),
		fieldExpectedVersion: structpb.NewStringValue(strconv.FormatInt(expectedVersion, 10)),
	}}
}

// UpdateFromProto decodes a ConditionalUpdate request, rejecting unknown
// statuses.
func UpdateFromProto(s *structpb.Struct) (id string, t domain.Transition, expectedVersion int64, err error) {
	id = stringField(s, fieldID)
	status, err := domain.ParseStatus(stringField(s, fieldStatus))
	if err != nil {
		return "", domain.Transition{}, 0, err
	}
	t = domain.Transition{
		Status:        status,
		PaymentStatus: domain.PaymentStatus(stringField(s, fieldPaymentStatus)),
	}
	if t.PaymentStatus == "" {
		t.PaymentStatus = domain.PaymentStatusFor(status)
	}
	if err = t.Validate(); err != nil {
		return "", domain.Transition{}, 0, err
	}
	if expectedVersion, err = int64Field(s, fieldExpectedVersion); err != nil {
		return "", domain.Transition{}, 0, err
	}
	return id, t, expectedVersion, nil
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func int64Field(s *structpb.Struct, name string) (int64, error) {
	raw := stringField(s, name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mappers: parse %s %q: %w", name, raw, err)
	}
	return v, nil
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("mappers: parse %s %q: %w", name, raw, err)
	}
	return t, nil
}
