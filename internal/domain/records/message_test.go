package records

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	raw := []byte(`{
		"correlationId": "abc-123",
		"probe": "tls-scan",
		"payload": {"host": "example.org", "port": 443}
	}`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", env.CorrelationID)
	assert.Equal(t, "tls-scan", env.Probe)
	// payload comes out compacted, key order and number forms untouched
	assert.Equal(t, `{"host":"example.org","port":443}`, string(env.Payload))
}

func TestParseEnvelopeProbeOptional(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"correlationId":"x","payload":{"a":1}}`))
	require.NoError(t, err)
	assert.Empty(t, env.Probe)
}

func TestParseEnvelopeRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `nonsense`},
		{"empty body", ``},
		{"unknown field", `{"correlationId":"x","payload":{"a":1},"extra":true}`},
		{"trailing data", `{"correlationId":"x","payload":{"a":1}}{"again":true}`},
		{"missing correlation id", `{"payload":{"a":1}}`},
		{"correlation id too long", `{"correlationId":"` + strings.Repeat("a", MaxCorrelationIDLen+1) + `","payload":{"a":1}}`},
		{"correlation id with space", `{"correlationId":"a b","payload":{"a":1}}`},
		{"correlation id with control char", "{\"correlationId\":\"a\x00b\",\"payload\":{\"a\":1}}"},
		{"missing payload", `{"correlationId":"x"}`},
		{"null payload", `{"correlationId":"x","payload":null}`},
		{"payload not an object", `{"correlationId":"x","payload":[1,2]}`},
		{"payload string", `{"correlationId":"x","payload":"{\"a\":1}"}`},
		{"empty payload object", `{"correlationId":"x","payload":{}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.raw))
			require.Error(t, err)
			assert.Nil(t, env)
			assert.True(t, IsValidation(err), "expected a validation error, got %v", err)
		})
	}
}

func TestParseEnvelopeCanonicalBytesStable(t *testing.T) {
	// Two messages with the same payload but different formatting must
	// produce the same canonical bytes, otherwise verification would
	// depend on transport whitespace.
	a, err := ParseEnvelope([]byte(`{"correlationId":"x","payload":{"a": 1, "b": "two"}}`))
	require.NoError(t, err)
	b, err := ParseEnvelope([]byte("{\"correlationId\":\"y\",\"payload\":{\"a\":1,\n\t\"b\":\"two\"}}"))
	require.NoError(t, err)
	assert.Equal(t, a.Payload, b.Payload)
}
