package lexer

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// TestLexGoldenFixtures runs every source/expected-kinds pair bundled in
// testdata/golden.txtar through the lexer and compares the resulting kind
// sequence against the fixture's recorded expectation, one txtar archive
// holding many cases (§4.3 ambient test-tooling note: golden fixtures reuse
// the teacher's own x/tools dependency for its archive format).
func TestLexGoldenFixtures(t *testing.T) {
	data, err := os.ReadFile("testdata/golden.txtar")
	require.NoError(t, err)
	archive := txtar.Parse(data)

	cases := map[string]struct{ src, kinds string }{}
	for _, f := range archive.Files {
		dir, base := path.Split(f.Name)
		dir = strings.TrimSuffix(dir, "/")
		c := cases[dir]
		switch base {
		case "in.naab":
			c.src = string(f.Data)
		case "kinds":
			c.kinds = string(f.Data)
		}
		cases[dir] = c
	}
	require.NotEmpty(t, cases)

	for name, c := range cases {
		name, c := name, c
		t.Run(name, func(t *testing.T) {
			want := strings.Fields(c.kinds)
			toks := lexAll(t, strings.TrimRight(c.src, "\n"))
			got := make([]string, len(toks))
			for i, tok := range toks {
				got[i] = tok.Kind.String()
			}
			require.Equal(t, want, got)
		})
	}
}
