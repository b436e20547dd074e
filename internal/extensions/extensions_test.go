package extensions

import (
	"reflect"
	"testing"
)

func TestDiffMessages(t *testing.T) {
	cases := []struct {
		name          string
		before, after []string
		want          Diff
	}{
		{
			"new error appears",
			[]string{"a"},
			[]string{"a", "b"},
			Diff{Added: []string{"b"}, Resolved: []string{}, Unchanged: 1},
		},
		{
			"error resolved",
			[]string{"a", "b"},
			[]string{"b"},
			Diff{Added: []string{}, Resolved: []string{"a"}, Unchanged: 1},
		},
		{
			"no change",
			[]string{"a", "b"},
			[]string{"a", "b"},
			Diff{Added: []string{}, Resolved: []string{}, Unchanged: 2},
		},
		{
			"both empty",
			nil,
			nil,
			Diff{Added: []string{}, Resolved: []string{}, Unchanged: 0},
		},
		{
			"full swap",
			[]string{"old"},
			[]string{"new"},
			Diff{Added: []string{"new"}, Resolved: []string{"old"}, Unchanged: 0},
		},
	}

	for _, tc := range cases {
		got := DiffMessages(tc.before, tc.after)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}
