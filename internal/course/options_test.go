package course

import (
	"reflect"
	"testing"
)

func TestDecodeOptions(t *testing.T) {
	schema, err := compileOptionsSchema()
	if err != nil {
		t.Fatalf("compileOptionsSchema() error = %v", err)
	}

	tests := []struct {
		name string
		data string
		want []string
	}{
		{"four strings", `["a","b","c","d"]`, []string{"a", "b", "c", "d"}},
		{"two strings kept for Valid to reject", `["a","b"]`, []string{"a", "b"}},
		{"object", `{"a":1}`, nil},
		{"mixed types", `["a",2,"c","d"]`, nil},
		{"string", `"abcd"`, nil},
		{"empty", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeOptions(schema, "q", []byte(tt.data))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeOptions(%s) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}
