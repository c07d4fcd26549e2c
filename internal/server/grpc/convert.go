package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gojue/ecaptureQ/internal/query"
	"github.com/gojue/ecaptureQ/internal/session"
	"github.com/gojue/ecaptureQ/internal/store"
	"github.com/gojue/ecaptureQ/internal/table"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts v through its JSON form, so Struct fields carry the
// same names and shapes as the REST bodies.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawToStruct(b)
}

// RawToStruct parses a JSON object into a Struct.
func RawToStruct(b []byte) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStruct decodes s into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Index is a row index or cursor as carried in Struct messages. Struct
// numbers are float64, exact only up to 2^53, so Index is written as a
// decimal string. Reads accept that string or a plain number within the
// exact range.
type Index uint64

// IndexOf converts an optional index for a request body.
func IndexOf(p *uint64) *Index {
	if p == nil {
		return nil
	}
	v := Index(*p)
	return &v
}

func (i Index) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatUint(uint64(i), 10)), nil
}

func (i *Index) UnmarshalJSON(b []byte) error {
	s := string(b)
	if uq, err := strconv.Unquote(s); err == nil {
		v, err := strconv.ParseUint(uq, 10, 64)
		if err != nil {
			return fmt.Errorf("index %q: %w", uq, err)
		}
		*i = Index(v)
		return nil
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil && v <= maxExactIndex {
		*i = Index(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > maxExactIndex {
		return fmt.Errorf("index %s: send values above 2^53 as a decimal string", s)
	}
	*i = Index(f)
	return nil
}

const maxExactIndex = 1 << 53

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var qe *table.QueryError
	code := codes.Internal
	switch {
	case errors.Is(err, query.ErrMultipleStatements),
		errors.Is(err, query.ErrUnbalanced),
		errors.Is(err, query.ErrOpenComment),
		errors.As(err, &qe):
		code = codes.InvalidArgument
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, session.ErrAlreadyCapturing):
		code = codes.AlreadyExists
	case errors.Is(err, session.ErrNotCapturing):
		code = codes.FailedPrecondition
	case errors.Is(err, store.ErrClosed), errors.Is(err, table.ErrClosed):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}
