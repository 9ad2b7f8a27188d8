package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gwcore/internal/reqctx"
)

func ctxWithVar(name string, value any) *reqctx.Context {
	ctx := reqctx.New("GET", "h", "/x", "1.2.3.4:1", nil, nil, nil)
	ctx.SetVar(name, value)
	return ctx
}

func TestCompile_UnknownKind(t *testing.T) {
	_, err := Compile(Node{Kind: "xor"})
	assert.Error(t, err)
}

func TestCompile_CmpMissingVar(t *testing.T) {
	_, err := Compile(Node{Kind: "cmp", Op: "=="})
	assert.Error(t, err)
}

func TestCompile_CmpUnsupportedOperator(t *testing.T) {
	_, err := Compile(Node{Kind: "cmp", Var: "x", Op: "~="})
	assert.Error(t, err)
}

func TestCompile_NotRequiresExactlyOneChild(t *testing.T) {
	_, err := Compile(Node{Kind: "not", Children: []Node{{Kind: "cmp", Var: "x", Op: "=="}, {Kind: "cmp", Var: "y", Op: "=="}}})
	assert.Error(t, err)
}

func TestExpr_AndOrNot(t *testing.T) {
	n := Node{
		Kind: "and",
		Children: []Node{
			{Kind: "cmp", Var: "method", Op: "==", Operand: "GET"},
			{Kind: "not", Children: []Node{{Kind: "cmp", Var: "host", Op: "==", Operand: "nope"}}},
		},
	}
	expr, err := Compile(n)
	require.NoError(t, err)
	assert.True(t, expr.Eval(ctxWithVar("unused", nil)))
}

func TestExpr_Or(t *testing.T) {
	n := Node{Kind: "or", Children: []Node{
		{Kind: "cmp", Var: "x", Op: "==", Operand: "a"},
		{Kind: "cmp", Var: "x", Op: "==", Operand: "b"},
	}}
	expr, err := Compile(n)
	require.NoError(t, err)

	assert.True(t, expr.Eval(ctxWithVar("x", "b")))
	assert.False(t, expr.Eval(ctxWithVar("x", "c")))
}

func TestValidOperator(t *testing.T) {
	for _, op := range []string{"==", "!=", ">", "<", ">=", "<=", "~~", "in"} {
		assert.True(t, ValidOperator(op), op)
	}
	assert.False(t, ValidOperator("xor"))
}

func TestCompare_Equality(t *testing.T) {
	assert.True(t, Compare("GET", "==", "GET"))
	assert.False(t, Compare("GET", "==", "POST"))
	assert.True(t, Compare("GET", "!=", "POST"))
}

func TestCompare_Regex(t *testing.T) {
	assert.True(t, Compare("/users/42", "~~", `^/users/\d+$`))
	assert.False(t, Compare("/users/abc", "~~", `^/users/\d+$`))
}

func TestCompare_RegexInvalidPatternIsFalse(t *testing.T) {
	assert.False(t, Compare("x", "~~", "("))
}

func TestCompare_In(t *testing.T) {
	assert.True(t, Compare("b", "in", "a, b, c"))
	assert.False(t, Compare("d", "in", "a, b, c"))
}

func TestCompare_NumericOrdering(t *testing.T) {
	assert.True(t, Compare(5, ">", "3"))
	assert.False(t, Compare(5, "<", "3"))
	assert.True(t, Compare("5", ">=", "5"))
	assert.True(t, Compare(3.5, "<=", "3.5"))
}

func TestCompare_NumericOperatorOnNonNumericIsFalse(t *testing.T) {
	assert.False(t, Compare("abc", ">", "3"))
	assert.False(t, Compare(5, ">", "not-a-number"))
}

func TestCompare_NilValue(t *testing.T) {
	assert.True(t, Compare(nil, "==", ""))
}

func TestRegexLRU_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newRegexLRU(2)

	_, err := c.get("a")
	require.NoError(t, err)
	_, err = c.get("b")
	require.NoError(t, err)
	_, err = c.get("c")
	require.NoError(t, err)

	assert.Equal(t, 2, c.order.Len())
	_, stillCached := c.items["a"]
	assert.False(t, stillCached, "oldest entry evicted once capacity is exceeded")
}

func TestRegexLRU_GetReusesCompiledPattern(t *testing.T) {
	c := newRegexLRU(4)

	re1, err := c.get(`^\d+$`)
	require.NoError(t, err)
	re2, err := c.get(`^\d+$`)
	require.NoError(t, err)
	assert.Same(t, re1, re2, "a repeated pattern returns the same compiled regexp, not a fresh compile")
}

func TestRegexLRU_InvalidPatternReturnsError(t *testing.T) {
	c := newRegexLRU(4)
	_, err := c.get("(")
	assert.Error(t, err)
}
