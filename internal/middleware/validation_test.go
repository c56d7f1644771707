package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Mirrors the migration start payload so the tag set under test matches what
// the API actually accepts.
type startRequest struct {
	ProductIDs []int  `json:"product_ids" validate:"required,min=1,dive,gt=0"`
	Direction  string `json:"direction" validate:"required,oneof=source target"`
}

func decodeStart(t *testing.T, body map[string]interface{}) error {
	t.Helper()
	reqBody, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/migrate/to-target", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	var payload startRequest
	return DecodeAndValidate(req, &payload)
}

// Feature: marketplace-bridge, Property 20: Migration requests missing a
// required field never reach the service layer
func TestProperty_MissingFieldsAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("both product_ids and direction are required", prop.ForAll(
		func(includeProducts bool, includeDirection bool) bool {
			body := make(map[string]interface{})
			if includeProducts {
				body["product_ids"] = []int{101, 102}
			}
			if includeDirection {
				body["direction"] = "target"
			}

			err := decodeStart(t, body)
			if includeProducts && includeDirection {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_DirectionMustNameAMarketplace(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("only source and target pass the oneof constraint", prop.ForAll(
		func(direction string) bool {
			err := decodeStart(t, map[string]interface{}{
				"product_ids": []int{7},
				"direction":   direction,
			})

			if direction == "source" || direction == "target" {
				return err == nil
			}
			return err != nil
		},
		gen.OneConstOf("source", "target", "ozon", "wb", "sideways", ""),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ProductIDsMustBePositive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("any non-positive ID fails the dive constraint", prop.ForAll(
		func(ids []int) bool {
			err := decodeStart(t, map[string]interface{}{
				"product_ids": ids,
				"direction":   "source",
			})

			for _, id := range ids {
				if id <= 0 {
					return err != nil
				}
			}
			return err == nil
		},
		gen.SliceOfN(4, gen.IntRange(-5, 100)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrors(t *testing.T) {
	err := decodeStart(t, map[string]interface{}{
		"product_ids": []int{1, 2},
		"direction":   "sideways",
	})
	if err == nil {
		t.Fatal("expected a validation error")
	}

	fieldErrors := FormatValidationErrors(err)
	if len(fieldErrors) != 1 {
		t.Fatalf("expected 1 field error, got %d", len(fieldErrors))
	}
	if fieldErrors[0].Field != "Direction" {
		t.Errorf("expected field Direction, got %q", fieldErrors[0].Field)
	}
	if fieldErrors[0].Message != "Must be one of: source target" {
		t.Errorf("unexpected message %q", fieldErrors[0].Message)
	}
}

func TestFormatValidationErrorsIgnoresOtherErrors(t *testing.T) {
	fieldErrors := FormatValidationErrors(errors.New("unexpected EOF"))
	if len(fieldErrors) != 0 {
		t.Fatalf("expected no field errors for a decode error, got %d", len(fieldErrors))
	}
}
