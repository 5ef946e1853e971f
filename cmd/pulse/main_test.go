package main

import (
	"reflect"
	"testing"
)

func TestRewriteTaskLookupArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"pulse"},
			want: []string{"pulse"},
		},
		{
			name: "hash ref first token",
			in:   []string{"pulse", "#12"},
			want: []string{"pulse", "tasks", "show", "12"},
		},
		{
			name: "bare number",
			in:   []string{"pulse", "7"},
			want: []string{"pulse", "tasks", "show", "7"},
		},
		{
			name: "after value flag",
			in:   []string{"pulse", "--api", "http://planner:8000", "#12"},
			want: []string{"pulse", "--api", "http://planner:8000", "tasks", "show", "12"},
		},
		{
			name: "after equals flag",
			in:   []string{"pulse", "--dir=/tmp/pulse", "#12", "--cached"},
			want: []string{"pulse", "--dir=/tmp/pulse", "tasks", "show", "12", "--cached"},
		},
		{
			name: "after bool flag",
			in:   []string{"pulse", "--pretty", "#12"},
			want: []string{"pulse", "--pretty", "tasks", "show", "12"},
		},
		{
			name: "after double dash",
			in:   []string{"pulse", "--format", "md", "--", "#12"},
			want: []string{"pulse", "--format", "md", "--", "tasks", "show", "12"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"pulse", "tasks", "show", "12"},
			want: []string{"pulse", "tasks", "show", "12"},
		},
		{
			name: "flag value that looks like a ref is not rewritten",
			in:   []string{"pulse", "--dir", "12"},
			want: []string{"pulse", "--dir", "12"},
		},
		{
			name: "zero is not a task",
			in:   []string{"pulse", "#0"},
			want: []string{"pulse", "#0"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"pulse", "wat"},
			want: []string{"pulse", "wat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteTaskLookupArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rewriteTaskLookupArgs:\n got: %#v\nwant: %#v", got, tt.want)
			}
		})
	}
}
