package ndn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	n, err := ParseName("/esp/fiware/12347/value")
	require.NoError(t, err)
	require.Len(t, n, 4)
	assert.Equal(t, "12347", string(n[2].Value))
	assert.Equal(t, "/esp/fiware/12347/value", n.String())

	n, err = ParseName("ndn:/a%2Fb/%00%FF")
	require.NoError(t, err)
	assert.Equal(t, []byte("a/b"), n[0].Value)
	assert.Equal(t, []byte{0x00, 0xff}, n[1].Value)
	assert.Equal(t, "/a%2Fb/%00%FF", n.String())

	_, err = ParseName("/bad%2")
	assert.Error(t, err)
}

func TestNameEmptyAndPeriods(t *testing.T) {
	assert.Equal(t, "/", Name{}.String())

	n := Name{GenericComponent(nil), GenericComponent([]byte("."))}
	assert.Equal(t, "/.../....", n.String())

	parsed, err := ParseName(n.String())
	require.NoError(t, err)
	assert.True(t, n.Equal(parsed))
}

func TestNamePrefix(t *testing.T) {
	prefix := MustParseName("/esp/fiware")

	assert.True(t, prefix.IsPrefixOf(MustParseName("/esp/fiware/1/value")))
	assert.True(t, prefix.IsPrefixOf(prefix))
	assert.False(t, prefix.IsPrefixOf(MustParseName("/esp")))
	assert.False(t, prefix.IsPrefixOf(MustParseName("/esp/other/1")))
}

func TestNameWireRoundTrip(t *testing.T) {
	n := MustParseName("/esp/fiware/12347").Append(GenericComponent([]byte{0, 0, 0, 0, 0, 0, 0x37, 0x40}))

	el, _, err := readElement(n.encode(nil))
	require.NoError(t, err)
	decoded, err := decodeName(el.Value)
	require.NoError(t, err)
	assert.True(t, n.Equal(decoded))
}

func TestComponentString(t *testing.T) {
	assert.Equal(t, "params-sha256=abcd", Component{Type: TypeParametersSha256DigestComponent, Value: []byte{0xab, 0xcd}}.String())
	assert.Equal(t, "sha256digest=01", Component{Type: TypeImplicitSha256DigestComponent, Value: []byte{1}}.String())
	assert.Equal(t, "50=x", Component{Type: 50, Value: []byte("x")}.String())
}
