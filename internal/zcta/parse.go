package zcta

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

var (
	errNotCollection = errors.New("dataset is not a GeoJSON FeatureCollection")
	errNoFeatures    = errors.New(`dataset has no "features" array`)
)

// rawFeature is one undecoded element of the features array. Offset is the
// decoder's position in the input after reading it.
type rawFeature struct {
	Data   json.RawMessage
	Offset int64
}

// decodeFeatures streams the elements of a FeatureCollection's features
// array without holding the decoded collection in memory. Each call to the
// returned sequence restarts from the reader's current position, so callers
// hand it a fresh reader per load. Syntax errors end the sequence.
func decodeFeatures(r io.Reader) iter.Seq2[rawFeature, error] {
	return func(yield func(rawFeature, error) bool) {
		dec := json.NewDecoder(r)
		if err := expectDelim(dec, '{'); err != nil {
			yield(rawFeature{}, fmt.Errorf("%w: %v", errNotCollection, err))
			return
		}

		found := false
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				yield(rawFeature{}, fmt.Errorf("read key: %w", err))
				return
			}
			if key, _ := tok.(string); key != "features" {
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					yield(rawFeature{}, fmt.Errorf("skip %q: %w", tok, err))
					return
				}
				continue
			}

			found = true
			if err := expectDelim(dec, '['); err != nil {
				yield(rawFeature{}, fmt.Errorf("features: %w", err))
				return
			}
			for dec.More() {
				var raw json.RawMessage
				if err := dec.Decode(&raw); err != nil {
					yield(rawFeature{}, fmt.Errorf("read feature: %w", err))
					return
				}
				if !yield(rawFeature{Data: raw, Offset: dec.InputOffset()}, nil) {
					return
				}
			}
			if err := expectDelim(dec, ']'); err != nil {
				yield(rawFeature{}, fmt.Errorf("features: %w", err))
				return
			}
		}
		if !found {
			yield(rawFeature{}, errNoFeatures)
		}
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
