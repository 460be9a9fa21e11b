package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDoc(t *testing.T, raw string) Doc {
	t.Helper()
	d, err := DecodeJSON([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return d
}

func TestApplyNestedPaths(t *testing.T) {
	doc := mustDoc(t, `{"gems":10,"adProgress":{"q1":{"watched":1,"claimed":false}}}`)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	out, err := Apply(doc, Updates{
		"gems":                  Increment(5),
		"adProgress.q1.watched": Increment(1),
		"adProgress.q2.watched": Increment(1),
		"adCooldowns.popup":     now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if v, _ := Lookup(out, "gems"); v != json.Number("15") {
		t.Fatalf("gems: got %v", v)
	}
	if v, _ := Lookup(out, "adProgress.q1.watched"); v != json.Number("2") {
		t.Fatalf("q1 watched: got %v", v)
	}
	if v, _ := Lookup(out, "adProgress.q1.claimed"); v != false {
		t.Fatalf("sibling field should survive, got %v", v)
	}
	if v, _ := Lookup(out, "adProgress.q2.watched"); v != json.Number("1") {
		t.Fatalf("q2 watched: got %v", v)
	}
	if v, _ := Lookup(out, "adCooldowns.popup"); v != "2025-05-01T12:00:00Z" {
		t.Fatalf("cooldown: got %v", v)
	}

	// the input is untouched
	if v, _ := Lookup(doc, "gems"); v != json.Number("10") {
		t.Fatalf("input mutated: %v", v)
	}
}

func TestApplyIncrementDecimal(t *testing.T) {
	doc := mustDoc(t, `{"usdt":"10"}`)
	out, err := Apply(doc, Updates{"usdt": IncrementDecimal(decimal.RequireFromString("-5.1"))})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v, _ := Lookup(out, "usdt"); v != "4.9" {
		t.Fatalf("usdt: got %v", v)
	}

	out, err = Apply(Doc{}, Updates{"ton": IncrementDecimal(decimal.RequireFromString("0.25"))})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v, _ := Lookup(out, "ton"); v != "0.25" {
		t.Fatalf("missing field should start from zero, got %v", v)
	}
}

func TestArrayUnionSkipsDuplicates(t *testing.T) {
	doc := mustDoc(t, `{"claimedQuests":["a"]}`)
	out, err := Apply(doc, Updates{"claimedQuests": ArrayUnion("a", "b", "b")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	arr, _ := Lookup(out, "claimedQuests")
	if got := arr.([]any); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected array %v", got)
	}
}

func TestIncrementOnStringFails(t *testing.T) {
	doc := mustDoc(t, `{"gems":"lots"}`)
	if _, err := Apply(doc, Updates{"gems": Increment(1)}); err == nil {
		t.Fatalf("expected error incrementing a string")
	}
}

func TestApplyCrossingScalarFails(t *testing.T) {
	doc := mustDoc(t, `{"adProgress":5}`)
	if _, err := Apply(doc, Updates{"adProgress.q1.watched": 1}); err == nil {
		t.Fatalf("expected error writing through a scalar")
	}
}

func TestMergeKeepsSiblings(t *testing.T) {
	doc := mustDoc(t, `{"a":{"x":1,"y":2},"b":"keep"}`)
	out, err := Merge(doc, Doc{"a": map[string]any{"y": 3, "z": Increment(4)}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if v, _ := Lookup(out, "a.x"); v != json.Number("1") {
		t.Fatalf("a.x: %v", v)
	}
	if v, _ := Lookup(out, "a.y"); v != json.Number("3") {
		t.Fatalf("a.y: %v", v)
	}
	if v, _ := Lookup(out, "a.z"); v != json.Number("4") {
		t.Fatalf("a.z: %v", v)
	}
	if v, _ := Lookup(out, "b"); v != "keep" {
		t.Fatalf("b: %v", v)
	}
}

func TestCompare(t *testing.T) {
	if Compare(json.Number("9"), json.Number("10")) >= 0 {
		t.Fatalf("numbers must compare numerically")
	}
	if Compare("2025-01-01T00:00:00.5Z", "2025-01-01T00:00:01Z") >= 0 {
		t.Fatalf("timestamps must compare by time")
	}
	if Compare(nil, json.Number("1")) >= 0 {
		t.Fatalf("nil sorts first")
	}
}

func TestRefChild(t *testing.T) {
	r := NewRef("ledgers", "42").Child("transactions", "tx1")
	if r.Collection != "ledgers/42/transactions" || r.Name() != "transactions" {
		t.Fatalf("unexpected child ref %+v", r)
	}
	q := Query{Collection: "transactions", Group: true}
	if !q.Matches(r.Collection) {
		t.Fatalf("group query should match subcollection")
	}
}
