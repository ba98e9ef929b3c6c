package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array. The Census
// API answers with an array of string arrays, header first:
//
//	[["NAME","B01003_001E","state","county","tract"],["Census Tract 1; ...","4520","53","033","000100"]]
//
// The element channel is closed when decoding stops; the error channel then
// yields at most one error. An empty body is an empty array.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	items := make(chan T, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(items)
		if err := decodeArray(ctx, json.NewDecoder(r), items); err != nil {
			errc <- err
		}
	}()

	return items, errc
}

func decodeArray[T any](ctx context.Context, dec *json.Decoder, items chan<- T) error {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "json: read array start")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return eris.Errorf("json: expected '[', got %v", tok)
	}

	for dec.More() {
		var item T
		if err := dec.Decode(&item); err != nil {
			return eris.Wrap(err, "json: decode element")
		}
		select {
		case items <- item:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "json: decode cancelled")
		}
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return eris.Wrap(err, "json: read array end")
	}
	return nil
}

// DecodeJSONObject decodes one JSON value from r, e.g. a Socrata view
// description.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	v := new(T)
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return v, nil
}
