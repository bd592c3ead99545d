package parser

import (
	"fmt"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// TestParseGoldenFixtures runs every source/expected-shape pair bundled in
// testdata/golden.txtar through the parser and checks the resulting
// top-level statement type sequence, one txtar archive holding many cases
// (mirrors lexer's own golden_test.go).
func TestParseGoldenFixtures(t *testing.T) {
	data, err := os.ReadFile("testdata/golden.txtar")
	require.NoError(t, err)
	archive := txtar.Parse(data)

	cases := map[string]struct{ src, want string }{}
	for _, f := range archive.Files {
		dir, base := path.Split(f.Name)
		dir = strings.TrimSuffix(dir, "/")
		c := cases[dir]
		switch base {
		case "in.naab":
			c.src = string(f.Data)
		case "want":
			c.want = string(f.Data)
		}
		cases[dir] = c
	}
	require.NotEmpty(t, cases)

	for name, c := range cases {
		name, c := name, c
		t.Run(name, func(t *testing.T) {
			prog := mustParse(t, c.src)
			want := strings.Fields(c.want)
			got := make([]string, len(prog.Stmts))
			for i, s := range prog.Stmts {
				got[i] = fmt.Sprintf("%T", s)
			}
			require.Equal(t, want, got)
		})
	}
}
