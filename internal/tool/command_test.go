package tool

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseArgs(t *testing.T) {
	for _, test := range []struct {
		name string
		args []string
		pos  []string
		out  string
		mock bool
	}{
		{"flags first", []string{"-o", "dir", "--mocks", "a.idl"}, []string{"a.idl"}, "dir", true},
		{"flags last", []string{"a.idl", "-o", "dir"}, []string{"a.idl"}, "dir", false},
		{"interleaved", []string{"a", "--mocks", "b", "-o=x", "c"}, []string{"a", "b", "c"}, "x", true},
		{"terminator", []string{"a", "--", "-o", "b"}, []string{"a", "-o", "b"}, "", false},
		{"none", nil, nil, "", false},
	} {
		t.Run(test.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			out := fs.String("o", "", "")
			mocks := fs.Bool("mocks", false, "")
			pos, err := ParseArgs(fs, test.args)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.pos, pos); diff != "" {
				t.Errorf("positional (-want +got):\n%s", diff)
			}
			if *out != test.out || *mocks != test.mock {
				t.Errorf("o = %q, mocks = %v", *out, *mocks)
			}
		})
	}
}

func TestRun(t *testing.T) {
	var got []string
	fs := flag.NewFlagSet("echo", flag.ContinueOnError)
	upper := fs.Bool("upper", false, "")
	commands := map[string]*Command{
		"echo": {
			Name:        "echo",
			Description: "Echo the arguments",
			Help:        "echo [--upper] args...",
			Flags:       fs,
			Fn: func(_ context.Context, args []string) error {
				for _, a := range args {
					if *upper {
						a = strings.ToUpper(a)
					}
					got = append(got, a)
				}
				return nil
			},
		},
		"fail": {
			Name: "fail",
			Fn: func(context.Context, []string) error {
				return errors.New("boom")
			},
		},
		"misuse": {
			Name: "misuse",
			Help: "misuse help",
			Fn: func(context.Context, []string) error {
				return Usagef("bad")
			},
		},
	}

	ctx := context.Background()
	for _, test := range []struct {
		args   []string
		code   int
		stderr string
	}{
		{[]string{"echo", "a", "--upper", "b"}, 0, ""},
		{[]string{"fail"}, 1, "rigging fail: boom"},
		{[]string{"misuse"}, 2, "misuse help"},
		{[]string{"nope"}, 2, `command "nope" not found`},
		{[]string{"help", "echo"}, 0, "echo [--upper] args..."},
		{nil, 2, "Echo the arguments"},
	} {
		var stderr bytes.Buffer
		if code := Run(ctx, "rigging", commands, test.args, &stderr); code != test.code {
			t.Errorf("Run(%v) = %d, want %d", test.args, code, test.code)
		}
		if !strings.Contains(stderr.String(), test.stderr) {
			t.Errorf("Run(%v) stderr = %q, want %q", test.args, stderr.String(), test.stderr)
		}
	}
	if diff := cmp.Diff([]string{"A", "B"}, got); diff != "" {
		t.Errorf("echoed (-want +got):\n%s", diff)
	}
}
