package textutil

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizePlain(t *testing.T) {
	t.Run("strips markup", func(t *testing.T) {
		got := SanitizePlain("  <script>alert(1)</script><b>Arrived</b> too late ", 0)
		if got != "Arrived too late" {
			t.Fatalf("unexpected sanitised text %q", got)
		}
	})

	t.Run("truncates by rune", func(t *testing.T) {
		got := SanitizePlain(strings.Repeat("指", 600), 500)
		if n := utf8.RuneCountInString(got); n != 500 {
			t.Fatalf("expected 500 runes, got %d", n)
		}
	})
}

func TestCompactAttributes(t *testing.T) {
	got := CompactAttributes(map[string]string{
		" order_id ": " ord_1 ",
		"coupon":     " ",
		" ":          "ignored",
	})
	want := map[string]string{"order_id": "ord_1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
	if CompactAttributes(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}
