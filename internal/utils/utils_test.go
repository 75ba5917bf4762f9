package utils

import (
	"reflect"
	"testing"
)

func TestUniqueStrings(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"empty", nil, nil},
		{"no dupes", []string{"a", "b"}, []string{"a", "b"}},
		{"dupes removed", []string{"a", "b", "a", "c", "b"}, []string{"a", "b", "c"}},
		{"order preserved", []string{"z", "a", "z"}, []string{"z", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UniqueStrings(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("UniqueStrings(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
