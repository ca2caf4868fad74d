package codes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Function(t *testing.T) {
	c, err := Parse("=TA001.BJ01.PP01")
	require.NoError(t, err)
	assert.Equal(t, "=TA001.BJ01.PP01", c.FullCode)
	assert.Equal(t, "=", c.Prefix)
	assert.Equal(t, AspectFunction, c.AspectType)
	assert.Equal(t, []string{"TA001", "BJ01", "PP01"}, c.Segments)
	assert.Equal(t, "=TA001.BJ01", c.ParentCode)
	assert.Equal(t, 3, c.Level)
	assert.Equal(t, "PP01", c.ShortCode())
}

func TestParse_Power(t *testing.T) {
	c, err := Parse("===DY1.AH1.H01.ZB1")
	require.NoError(t, err)
	assert.Equal(t, AspectPower, c.AspectType)
	assert.Equal(t, "===", c.Prefix)
	assert.Equal(t, "===DY1.AH1.H01", c.ParentCode)
	assert.Equal(t, 4, c.Level)
}

func TestParse_LongestPrefixWins(t *testing.T) {
	tests := []struct {
		in         string
		wantPrefix string
		wantType   AspectType
	}{
		{"===DY1", "===", AspectPower},
		{"++B1.F2", "++", AspectLocation},
		{"=TA001", "=", AspectFunction},
		{"  ===DY1.AH1  ", "===", AspectPower},
	}
	for _, tt := range tests {
		c, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantPrefix, c.Prefix, tt.in)
		assert.Equal(t, tt.wantType, c.AspectType, tt.in)
	}
}

func TestParse_Failures(t *testing.T) {
	for _, in := range []string{"", "   ", "TA001.BJ01", "+A", "===", "=...", "#X"} {
		_, err := Parse(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, ErrNotParseable), "input %q", in)

		var pe *ParseError
		assert.True(t, errors.As(err, &pe))
	}
}

func TestParse_DiscardsEmptySegments(t *testing.T) {
	c, err := Parse("=A..B.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, c.Segments)
	assert.Equal(t, "=A.B", c.FullCode)
	assert.Equal(t, "=A", c.ParentCode)
}

func TestParse_RootHasNoParent(t *testing.T) {
	c, err := Parse("++B1")
	require.NoError(t, err)
	assert.False(t, c.HasParent())
	assert.Equal(t, 1, c.Level)
}

func TestParse_EntityContainerRule(t *testing.T) {
	p := Parser{Rule: RuleEntityContainer}
	tests := []struct {
		in         string
		wantFull   string
		wantLevel  int
		wantParent string
	}{
		{"=A", "=A", 1, ""},
		{"=A.", "=A.", 2, "=A"},
		{"=A.B", "=A.B", 3, "=A."},
		{"=A.B.", "=A.B.", 4, "=A.B"},
	}
	for _, tt := range tests {
		c, err := p.Parse(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.wantFull, c.FullCode, tt.in)
		assert.Equal(t, tt.wantLevel, c.Level, tt.in)
		assert.Equal(t, tt.wantParent, c.ParentCode, tt.in)
	}
}

func TestExpand_ChainLinks(t *testing.T) {
	for _, rule := range []Rule{RuleFlat, RuleEntityContainer} {
		p := Parser{Rule: rule}
		for _, in := range []string{"=TA001.BJ01.PP01", "===DY1.AH1.H01.ZB1.", "++B1", "++B1.F2."} {
			chain := p.Expand(in)
			require.NotEmpty(t, chain, "%s %s", rule, in)

			want, err := p.Parse(in)
			require.NoError(t, err)
			assert.Equal(t, want, chain[len(chain)-1], "%s %s", rule, in)

			assert.Empty(t, chain[0].ParentCode)
			for i := 1; i < len(chain); i++ {
				assert.Equal(t, chain[i-1].FullCode, chain[i].ParentCode, "%s %s [%d]", rule, in, i)
				assert.Equal(t, chain[i-1].Level+1, chain[i].Level)
			}
		}
	}
}

func TestExpand_FlatChain(t *testing.T) {
	chain := Expand("=TA001.BJ01.PP01")
	require.Len(t, chain, 3)
	assert.Equal(t, "=TA001", chain[0].FullCode)
	assert.Equal(t, "=TA001.BJ01", chain[1].FullCode)
	assert.Equal(t, []string{"TA001", "BJ01"}, chain[1].Segments)
}

func TestExpand_EntityContainerChain(t *testing.T) {
	chain := Parser{Rule: RuleEntityContainer}.Expand("=A.B")
	var got []string
	for _, c := range chain {
		got = append(got, c.FullCode)
	}
	assert.Equal(t, []string{"=A", "=A.", "=A.B"}, got)
}

func TestExpand_Unparseable(t *testing.T) {
	assert.Empty(t, Expand("not a code"))
	assert.Empty(t, Expand(""))
}

func TestParseBatch(t *testing.T) {
	res := Default.ParseBatch([]string{"=A.B", "bogus"})
	require.Len(t, res, 2)
	require.NotNil(t, res[0].Code)
	assert.Equal(t, "=A", res[0].Code.ParentCode)
	assert.Nil(t, res[1].Code)
	assert.NotEmpty(t, res[1].Error)
}

func TestLooksLikeCode(t *testing.T) {
	assert.True(t, LooksLikeCode("===DY1"))
	assert.True(t, LooksLikeCode(" =A"))
	assert.False(t, LooksLikeCode("Pump 1"))
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("entity-container")
	require.NoError(t, err)
	assert.Equal(t, RuleEntityContainer, r)

	r, err = ParseRule("")
	require.NoError(t, err)
	assert.Equal(t, RuleFlat, r)

	_, err = ParseRule("nested")
	assert.Error(t, err)
}

func TestPrefixFor(t *testing.T) {
	assert.Equal(t, "===", PrefixFor(AspectPower))
	assert.Equal(t, "++", PrefixFor(AspectLocation))
	assert.Equal(t, "=", PrefixFor(AspectFunction))
	assert.Equal(t, "", PrefixFor("other"))
}
