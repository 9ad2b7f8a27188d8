package reqctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCookies struct{ jar map[string]string }

func (f fakeCookies) Cookie(name string) (string, bool) {
	v, ok := f.jar[name]
	return v, ok
}

type fakeVars struct{ set map[string]any }

func (f *fakeVars) Get(name string) (any, bool) {
	v, ok := f.set[name]
	return v, ok
}

func (f *fakeVars) Set(name string, value any) {
	if f.set == nil {
		f.set = make(map[string]any)
	}
	f.set[name] = value
}

func TestVar_Method(t *testing.T) {
	ctx := New("POST", "h", "/x", "1.2.3.4:1", nil, nil, nil)
	assert.Equal(t, "POST", ctx.Var("method"))
}

func TestVar_BuiltinsWithNilTable(t *testing.T) {
	ctx := New("GET", "example.com", "/a/b", "10.0.0.1:9", nil, nil, nil)
	assert.Equal(t, "/a/b", ctx.Var("uri"))
	assert.Equal(t, "example.com", ctx.Var("host"))
	assert.Equal(t, "10.0.0.1:9", ctx.Var("remote_addr"))
	assert.Equal(t, "GET", ctx.Var("request_method"))
	assert.Nil(t, ctx.Var("unknown_var"))
}

func TestVar_Cookie(t *testing.T) {
	cookies := fakeCookies{jar: map[string]string{"session": "abc123"}}
	ctx := New("GET", "h", "/x", "1.2.3.4:1", nil, cookies, nil)

	assert.Equal(t, "abc123", ctx.Var("cookie_session"))
	assert.Nil(t, ctx.Var("cookie_missing"))
	assert.Equal(t, cookies, ctx.Var("cookie"))
}

func TestVar_CookieWithNilAccessor(t *testing.T) {
	ctx := New("GET", "h", "/x", "1.2.3.4:1", nil, nil, nil)
	assert.Nil(t, ctx.Var("cookie_session"))
}

func TestVar_HeaderLowercasedWithDashToUnderscore(t *testing.T) {
	headers := map[string]string{"x_forwarded_for": "9.9.9.9"}
	ctx := New("GET", "h", "/x", "1.2.3.4:1", headers, nil, nil)

	assert.Equal(t, "9.9.9.9", ctx.Var("http_X-Forwarded-For"))
	assert.Nil(t, ctx.Var("http_missing"))
}

func TestVar_FallsThroughToVariableTable(t *testing.T) {
	vars := &fakeVars{set: map[string]any{"args_id": "42"}}
	ctx := New("GET", "h", "/x", "1.2.3.4:1", nil, nil, vars)

	assert.Equal(t, "42", ctx.Var("args_id"))
}

func TestVar_TableMissReturnsBuiltin(t *testing.T) {
	vars := &fakeVars{}
	ctx := New("GET", "example.com", "/x", "1.2.3.4:1", nil, nil, vars)
	assert.Equal(t, "example.com", ctx.Var("host"), "a table miss still falls back to the builtin")
}

func TestVar_MemoizesAcrossCalls(t *testing.T) {
	vars := &fakeVars{set: map[string]any{"k": "v1"}}
	ctx := New("GET", "h", "/x", "1.2.3.4:1", nil, nil, vars)

	assert.Equal(t, "v1", ctx.Var("k"))
	vars.set["k"] = "v2"
	assert.Equal(t, "v1", ctx.Var("k"), "the first resolution is memoized for the life of the request")
}

func TestSetVar_WritableNameFansOutToTable(t *testing.T) {
	vars := &fakeVars{}
	ctx := New("GET", "h", "/x", "1.2.3.4:1", nil, nil, vars)

	ctx.SetVar("upstream_scheme", "https")
	assert.Equal(t, "https", ctx.Var("upstream_scheme"))
	v, ok := vars.Get("upstream_scheme")
	require.True(t, ok)
	assert.Equal(t, "https", v)
}

func TestSetVar_NonWritableNameStaysLocal(t *testing.T) {
	vars := &fakeVars{}
	ctx := New("GET", "h", "/x", "1.2.3.4:1", nil, nil, vars)

	ctx.SetVar("scratch", "value")
	_, ok := vars.Get("scratch")
	assert.False(t, ok, "non-writable names never reach the transport variable table")
	assert.Equal(t, "value", ctx.Var("scratch"))
}

func TestIsWritable(t *testing.T) {
	assert.True(t, IsWritable("upstream_host"))
	assert.False(t, IsWritable("method"))
}

func TestRemoteIP_WithPort(t *testing.T) {
	ctx := New("GET", "h", "/x", "10.0.0.5:4321", nil, nil, nil)
	assert.Equal(t, "10.0.0.5", ctx.RemoteIP().String())
}

func TestRemoteIP_WithoutPort(t *testing.T) {
	ctx := New("GET", "h", "/x", "10.0.0.5", nil, nil, nil)
	assert.Equal(t, "10.0.0.5", ctx.RemoteIP().String())
}

func TestRemoteIP_Unparseable(t *testing.T) {
	ctx := New("GET", "h", "/x", "not-an-address", nil, nil, nil)
	assert.Nil(t, ctx.RemoteIP())
}
