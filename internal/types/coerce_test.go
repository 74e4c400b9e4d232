package types

import (
	"reflect"
	"testing"
)

func TestSnapPoints(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{1, 1},
		{float64(2), 2},
		{float64(4), 3},  // tie between 3 and 5 resolves low
		{float64(6), 5},  // closer to 5
		{float64(7), 8},  // closer to 8
		{float64(10), 8}, // closer to 8 than 13
		{float64(11), 13},
		{float64(100), 13},
		{float64(0), 1},
		{float64(-3), 1},
		{"5", 5},
		{"4", 3},
		{"not a number", 1},
		{nil, 1},
	}
	for _, c := range cases {
		if got := SnapPoints(c.in); got != c.want {
			t.Errorf("SnapPoints(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestCoerceLevel(t *testing.T) {
	cases := []struct {
		in   any
		want Level
	}{
		{"Low", LevelLow},
		{"LOW", LevelLow},
		{"medium", LevelMedium},
		{"High", LevelHigh},
		{"  high  ", LevelHigh},
		{"Extreme", LevelMedium},
		{"", LevelMedium},
		{nil, LevelMedium},
		{float64(3), LevelMedium},
	}
	for _, c := range cases {
		if got := CoerceLevel(c.in); got != c.want {
			t.Errorf("CoerceLevel(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestAsStringSlice(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"json array", []any{"a", "b"}, []string{"a", "b"}},
		{"comma string", "a, b ,c", []string{"a", "b", "c"}},
		{"empty string", "  ", []string{}},
		{"nil", nil, []string{}},
		{"drops blanks", []any{"a", "", "b"}, []string{"a", "b"}},
		{"number elements", []any{float64(1), "x"}, []string{"1", "x"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := AsStringSlice(c.in); !reflect.DeepEqual(got, c.want) {
				t.Errorf("AsStringSlice(%v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestKindPrefix(t *testing.T) {
	cases := map[Kind]string{
		KindEpic:          "EPIC",
		KindUserStory:     "USER-STORY",
		KindTechnicalTask: "TECHNICAL-TASK",
		KindSubTask:       "SUB-TASK",
		KindScenario:      "SCENARIO",
		Kind("mystery"):   "ITEM",
	}
	for k, want := range cases {
		if got := k.Prefix(); got != want {
			t.Errorf("Prefix(%s) = %s, want %s", k, got, want)
		}
	}
}
