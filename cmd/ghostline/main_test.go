package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghostline.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []step
		err    bool
	}{
		{"empty", "", nil, false},
		{"text", "aé", []step{{stepType, "a"}, {stepType, "é"}}, false},
		{"actions", "x{tab}{bs}", []step{{stepType, "x"}, {action: stepAccept}, {action: stepBackspace}}, false},
		{"literal brace", "{{", []step{{stepType, "{"}}, false},
		{"unknown", "{jump}", nil, true},
		{"unterminated", "{tab", nil, true},
		{"invalid utf8", "\xff", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScript(tt.script)
			if tt.err {
				if !errors.Is(err, ErrBadScript) {
					t.Fatalf("parseScript(%q) error = %v, want ErrBadScript", tt.script, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseScript(%q) error = %v", tt.script, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseScript(%q) = %v, want %v", tt.script, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("step %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReplay_TypeAndAccept(t *testing.T) {
	cfg := writeConfig(t, "[engine]\neager = true\n")
	tracePath := filepath.Join(t.TempDir(), "events.trace")

	var out, errOut bytes.Buffer
	code := run([]string{
		"replay", "--config", cfg,
		"--text", "fmt.",
		"--variant", "Print|ln()",
		"--type", "Pr{tab}",
		"--trace", tracePath,
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("run() = %d, stderr = %s", code, errOut.String())
	}

	got := out.String()
	for _, want := range []string{
		"Request(explicit)",
		`Show("Print",0)`,
		`Insert("intln()")`,
		"Hide(SELECTED)",
		`text="fmt.Println()" caret=13`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	out.Reset()
	code = run([]string{"trace", "--config", cfg, "--kind", "Insert,AfterInsert", tracePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("trace run() = %d, stderr = %s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], `Insert(0,"intln()")`) {
		t.Errorf("trace output = %q", out.String())
	}
}

func TestReplay_Escape(t *testing.T) {
	cfg := writeConfig(t, "[engine]\neager = true\n")

	var out, errOut bytes.Buffer
	code := run([]string{"replay", "--config", cfg, "--variant", "hello", "--type", "h{esc}i"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("run() = %d, stderr = %s", code, errOut.String())
	}
	got := out.String()
	if !strings.Contains(got, "Hide(ESCAPE_PRESSED)") {
		t.Errorf("output missing escape hide:\n%s", got)
	}
	if !strings.Contains(got, `text="hi" caret=2`) {
		t.Errorf("output missing final text:\n%s", got)
	}
}

func TestRun_Errors(t *testing.T) {
	ini := filepath.Join(t.TempDir(), "ghostline.ini")
	if err := os.WriteFile(ini, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad script", []string{"replay", "--type", "{jump}"}, "bad replay script"},
		{"bad level", []string{"replay", "--log-level", "loud"}, "log.level"},
		{"missing trace", []string{"trace", filepath.Join(t.TempDir(), "none")}, "open trace"},
		{"unsupported config", []string{"replay", "--config", ini}, "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			if code := run(tt.args, &out, &errOut); code != 1 {
				t.Fatalf("run() = %d, want 1", code)
			}
			if !strings.Contains(errOut.String(), tt.want) {
				t.Errorf("stderr = %q, want %q", errOut.String(), tt.want)
			}
		})
	}
}
