package wire_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/Othernet-Project/fsal/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestScalarAndList(t *testing.T) {
	raw := []byte(`<request><command>
		<type>search</type>
		<params>
			<query>readme</query>
			<whole_words>true</whole_words>
			<excludes><exclude>tmp</exclude><exclude>cache</exclude></excludes>
		</params>
	</command></request>`)

	req, err := wire.ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "search", req.Type)
	assert.Equal(t, "readme", req.Param("query"))
	assert.True(t, req.ParamBool("whole_words"))
	assert.Equal(t, []string{"tmp", "cache"}, req.ParamList("excludes"))
}

func TestParseRequestMissingCommand(t *testing.T) {
	_, err := wire.ParseRequest([]byte(`<request></request>`))
	assert.Error(t, err)
}

func TestResponseSuccessWithParams(t *testing.T) {
	resp := wire.NewSuccess().
		Param("base-path", "/base").
		ParamList("dirs", []string{"a", "b"}).
		ParamBool("exists", true)

	got := resp.Bytes()
	assert.Contains(t, string(got), "<success>true</success>")
	assert.Contains(t, string(got), "<base-path>/base</base-path>")
	assert.Contains(t, string(got), "<dirs><dir>a</dir><dir>b</dir></dirs>")
	assert.Contains(t, string(got), "<exists>true</exists>")
}

func TestResponseFailure(t *testing.T) {
	resp := wire.NewFailure(assertionError{"path escapes base"})
	got := string(resp.Bytes())
	assert.Contains(t, got, "<success>false</success>")
	assert.Contains(t, got, "<error>path escapes base</error>")
	assert.NotContains(t, got, "<params>")
}

func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, []byte("<request/>")))

	r := bufio.NewReader(&buf)
	got, err := wire.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "<request/>", string(got))
}

func TestSingularName(t *testing.T) {
	assert.Equal(t, "exclude", wire.SingularName("excludes"))
	assert.Equal(t, "event", wire.SingularName("events"))
}

func TestStrToBool(t *testing.T) {
	assert.True(t, wire.StrToBool("True"))
	assert.True(t, wire.StrToBool(" true "))
	assert.False(t, wire.StrToBool("false"))
	assert.False(t, wire.StrToBool(""))
}

type assertionError struct{ msg string }

func (e assertionError) Error() string { return e.msg }
