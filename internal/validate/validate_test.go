package validate

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/natours-dev/natours/internal/apperr"
)

type payload struct {
	Name       string  `json:"name" validate:"required,min=3,max=40"`
	Email      string  `json:"email" validate:"omitempty,email"`
	Difficulty string  `json:"difficulty" validate:"omitempty,oneof=easy medium difficult"`
	Rating     float64 `json:"rating" validate:"omitempty,min=1,max=5"`
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct(payload{Name: "The Forest Hiker", Difficulty: "easy", Rating: 4.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_Messages(t *testing.T) {
	tests := []struct {
		name string
		in   payload
		want string
	}{
		{"required", payload{}, "name: field is required"},
		{"short", payload{Name: "ab"}, "name: must have at least 3 characters"},
		{"oneof", payload{Name: "abc", Difficulty: "extreme"}, "difficulty: must be one of easy, medium, difficult"},
		{"email", payload{Name: "abc", Email: "nope"}, "email: please provide a valid email"},
		{"max", payload{Name: "abc", Rating: 6}, "rating: must not exceed 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			var ae *apperr.Error
			if !errors.As(err, &ae) {
				t.Fatalf("expected *apperr.Error, got %T (%v)", err, err)
			}
			if ae.Status != http.StatusBadRequest || !ae.Operational {
				t.Fatalf("status = %d operational = %v", ae.Status, ae.Operational)
			}
			if !strings.HasPrefix(ae.Message, "Invalid input data. ") || !strings.Contains(ae.Message, tt.want) {
				t.Fatalf("Message = %q, want it to contain %q", ae.Message, tt.want)
			}
		})
	}
}

func TestStruct_NonStruct(t *testing.T) {
	err := Struct(42)
	if err == nil {
		t.Fatal("expected error for non-struct input")
	}
	if _, ok := apperr.As(err); ok {
		t.Fatal("invalid validation target is a programming fault, not a client error")
	}
}
