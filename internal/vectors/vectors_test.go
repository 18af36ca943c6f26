package vectors

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/matfwd/internal/tensor"
)

func TestGenerateDeterministic(t *testing.T) {
	s := tensor.Shape{B: 2, T: 3, C: 5, OC: 4}
	a, err := Generate("a", s, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate("b", s, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Input, b.Input) || !slices.Equal(a.Expected, b.Expected) {
		t.Fatal("same seed produced different cases")
	}
	if len(a.Expected) != s.OutputLen() || len(a.ExpectedNoBias) != s.OutputLen() {
		t.Fatalf("expectation lengths %d,%d", len(a.Expected), len(a.ExpectedNoBias))
	}
	if err := a.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateRejectsShape(t *testing.T) {
	if _, err := Generate("bad", tensor.Shape{B: 1, T: 1, C: 0, OC: 1}, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestOracleAgreesWithHost(t *testing.T) {
	for _, s := range []tensor.Shape{
		{B: 1, T: 1, C: 1, OC: 1},
		{B: 2, T: 4, C: 16, OC: 8},
		{B: 3, T: 5, C: 33, OC: 7},
	} {
		c, err := Generate("oracle", s, 7)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Oracle(s, c.Input, c.Weight, c.Bias)
		if err != nil {
			t.Fatal(err)
		}
		if m := Check(&c, got, true, 1e-4); m != nil {
			t.Fatalf("%s: %v", s, m)
		}
		got, err = Oracle(s, c.Input, c.Weight, nil)
		if err != nil {
			t.Fatal(err)
		}
		if m := Check(&c, got, false, 1e-4); m != nil {
			t.Fatalf("%s no bias: %v", s, m)
		}
	}
}

func TestOracleKnownCase(t *testing.T) {
	s := tensor.Shape{B: 1, T: 1, C: 2, OC: 2}
	got, err := Oracle(s, []float32{1, 2}, []float32{3, 4, 5, 6}, []float32{0, 5})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []float32{11, 22}) {
		t.Fatalf("got %v want [11 22]", got)
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	c, err := Generate("m", tensor.Shape{B: 1, T: 2, C: 3, OC: 2}, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := slices.Clone(c.ExpectedNoBias)
	if m := Check(&c, got, false, 0); m != nil {
		t.Fatalf("exact copy reported %v", m)
	}
	got[2] += 1
	m := Check(&c, got, false, 1e-6)
	if m == nil {
		t.Fatal("expected mismatch")
	}
	if m.Index != 2 || m.Got != got[2] || m.Want != c.ExpectedNoBias[2] || m.Case != "m" {
		t.Fatalf("unexpected report %+v", m)
	}
	if m.Error() == "" {
		t.Fatal("empty error text")
	}
	if m := Check(&c, got[:3], false, 1e-6); m == nil || m.Index != 2 {
		t.Fatalf("short output report %+v", m)
	}
}

func TestSuiteRoundTrip(t *testing.T) {
	c1, _ := Generate("small", tensor.Shape{B: 1, T: 2, C: 3, OC: 4}, 1)
	c2, _ := Generate("wide", tensor.Shape{B: 2, T: 1, C: 17, OC: 5}, 2)
	want := &Suite{Cases: []Case{c1, c2}}

	for _, name := range []string{"suite.json", "suite.yaml", "nested/suite.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Save(path, want); err != nil {
				t.Fatal(err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if got.Version != SuiteVersion || len(got.Cases) != 2 {
				t.Fatalf("version=%d cases=%d", got.Version, len(got.Cases))
			}
			for i := range want.Cases {
				w, g := want.Cases[i], got.Cases[i]
				if g.Name != w.Name || g.Shape != w.Shape || g.Seed != w.Seed {
					t.Fatalf("case %d header mismatch: %+v", i, g.Shape)
				}
				if !slices.Equal(g.Input, w.Input) || !slices.Equal(g.Weight, w.Weight) ||
					!slices.Equal(g.Bias, w.Bias) || !slices.Equal(g.Expected, w.Expected) ||
					!slices.Equal(g.ExpectedNoBias, w.ExpectedNoBias) {
					t.Fatalf("case %d data mismatch", i)
				}
			}
		})
	}
}

func TestLoadComputesMissingExpectations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	src := `cases:
  - name: tiny
    shape: {B: 1, T: 1, C: 2, OC: 2}
    input: [1, 2]
    weight: [3, 4, 5, 6]
    bias: [0, 5]
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	c := s.Cases[0]
	if !slices.Equal(c.Expected, []float32{11, 22}) || !slices.Equal(c.ExpectedNoBias, []float32{11, 17}) {
		t.Fatalf("expected=%v no_bias=%v", c.Expected, c.ExpectedNoBias)
	}
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		file string
		body string
	}{
		{"extension", "s.txt", "{}"},
		{"unknown json field", "s.json", `{"version":1,"cases":[],"extra":1}`},
		{"unknown yaml field", "s.yaml", "version: 1\ncases: []\nextra: 1\n"},
		{"version", "v.json", `{"version":9,"cases":[]}`},
		{"short input", "short.json", `{"cases":[{"name":"x","shape":{"B":1,"T":1,"C":2,"OC":1},"input":[1],"weight":[1,1]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
