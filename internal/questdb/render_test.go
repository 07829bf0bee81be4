package questdb

import (
	"strings"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	t.Run("basic substitution", func(t *testing.T) {
		got, err := Render("SELECT * FROM t WHERE a=$1 AND b=$2", "x", 42)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		want := "SELECT * FROM t WHERE a='x' AND b=42"
		if got != want {
			t.Errorf("Render() = %q, want %q", got, want)
		}
	})

	t.Run("two digit placeholder", func(t *testing.T) {
		// $10 must be treated as index 10, not $1 followed by 0.
		params := []any{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}
		got, err := Render("INSERT INTO t VALUES ($1, $10)", params...)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		want := "INSERT INTO t VALUES ('p1', 'p10')"
		if got != want {
			t.Errorf("Render() = %q, want %q", got, want)
		}
	})

	t.Run("quote escaping", func(t *testing.T) {
		got, err := Render("SELECT $1", "O'Brien's")
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "SELECT 'O''Brien''s'" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("placeholder inside string literal untouched", func(t *testing.T) {
		got, err := Render("SELECT '$1', $1", "v")
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "SELECT '$1', 'v'" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("nil renders NULL", func(t *testing.T) {
		got, err := Render("UPDATE t SET a=$1", nil)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "UPDATE t SET a=NULL" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("time renders ISO-8601 UTC", func(t *testing.T) {
		ts := time.Date(2024, 1, 5, 13, 30, 0, 0, time.FixedZone("EST", -5*3600))
		got, err := Render("SELECT $1", ts)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !strings.Contains(got, "'2024-01-05T18:30:00.000000Z'") {
			t.Errorf("Render() = %q, want UTC instant", got)
		}
	})

	t.Run("nil time pointer renders NULL", func(t *testing.T) {
		var ts *time.Time
		got, err := Render("SELECT $1", ts)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "SELECT NULL" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("booleans and floats", func(t *testing.T) {
		got, err := Render("SELECT $1, $2", true, 1.5)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "SELECT true, 1.5" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("out of range placeholder", func(t *testing.T) {
		if _, err := Render("SELECT $2", "only"); err == nil {
			t.Error("Render() expected error for $2 with one param")
		}
	})

	t.Run("no params passthrough", func(t *testing.T) {
		got, err := Render("SELECT $1")
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "SELECT $1" {
			t.Errorf("Render() = %q", got)
		}
	})
}
