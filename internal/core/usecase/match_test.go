package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

func TestMatchIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []domain.Identifier
	}{
		{name: "empty", text: "", want: []domain.Identifier{}},
		{name: "single", text: "Tombamento: 12345.678.901 ok", want: []domain.Identifier{"12345.678.901"}},
		{
			name: "repeats kept in order",
			text: "A 00001.000.001 B 99999.999.999 C 00001.000.001",
			want: []domain.Identifier{"00001.000.001", "99999.999.999", "00001.000.001"},
		},
		{name: "too short", text: "1234.567.890 12345.67.890", want: []domain.Identifier{}},
		{name: "across page separator", text: "11111.222.333" + domain.PageSeparator + "44444.555.666", want: []domain.Identifier{"11111.222.333", "44444.555.666"}},
		{name: "commas are not dots", text: "12345,678,901", want: []domain.Identifier{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchIdentifiers(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("MatchIdentifiers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchIdentifiersAgreesWithParse(t *testing.T) {
	for _, id := range MatchIdentifiers("x 12345.678.901 y 00000.000.000") {
		if _, err := domain.ParseIdentifier(string(id)); err != nil {
			t.Fatalf("ParseIdentifier(%q) error = %v", id, err)
		}
	}
}

func TestDeduplicate(t *testing.T) {
	in := []domain.Identifier{"b", "a", "b", "c", "a"}
	want := []domain.Identifier{"b", "a", "c"}

	got := Deduplicate(in)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deduplicate() = %v, want %v", got, want)
	}
	if again := Deduplicate(got); !reflect.DeepEqual(again, got) {
		t.Fatalf("Deduplicate() is not idempotent: %v", again)
	}
	if got := Deduplicate(nil); len(got) != 0 {
		t.Fatalf("Deduplicate(nil) = %v, want empty", got)
	}
}

func TestNormalizeText(t *testing.T) {
	in := "Linha 1\r\n\tNº   12345.678.901   \r\n\n\n\nfim  "
	want := "Linha 1\n Nº 12345.678.901\n\nfim"
	if got := NormalizeText(in); got != want {
		t.Fatalf("NormalizeText() = %q, want %q", got, want)
	}
}
