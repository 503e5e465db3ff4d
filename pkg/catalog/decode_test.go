package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFileMappings(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := []byte(`[{"source":"modules/auth/server","destination":"backend/src/modules/auth"}]`)
		got, err := DecodeFileMappings("auth", raw)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "modules/auth/server", got[0].Source)
		assert.Equal(t, "backend/src/modules/auth", got[0].Destination)
	})

	t.Run("empty and null are absent", func(t *testing.T) {
		got, err := DecodeFileMappings("auth", nil)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = DecodeFileMappings("auth", []byte("null"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		raw := []byte(`[{"source":"a","destination":"b","mode":"0755"}]`)
		_, err := DecodeFileMappings("auth", raw)
		require.Error(t, err)

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "auth", de.Feature)
		assert.Equal(t, "fileMappings", de.Column)
	})

	t.Run("missing destination rejected", func(t *testing.T) {
		raw := []byte(`[{"source":"a"}]`)
		_, err := DecodeFileMappings("auth", raw)
		assert.Error(t, err)
	})

	t.Run("not an array rejected", func(t *testing.T) {
		raw := []byte(`{"source":"a","destination":"b"}`)
		_, err := DecodeFileMappings("auth", raw)
		assert.Error(t, err)
	})
}

func TestDecodeSchemaMappings(t *testing.T) {
	raw := []byte(`[{"model":"User","source":"modules/auth/schema.prisma"},{"source":"modules/auth/enums.prisma"}]`)
	got, err := DecodeSchemaMappings("auth", raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "User", got[0].Model)
	assert.Equal(t, "", got[1].Model)

	_, err = DecodeSchemaMappings("auth", []byte(`[{"model":"User"}]`))
	assert.Error(t, err, "source is required")
}

func TestDecodeEnvVars(t *testing.T) {
	raw := []byte(`[{"key":"STRIPE_SECRET_KEY","description":"Stripe API secret key","required":true},{"key":"ANALYTICS_WRITE_KEY"}]`)
	got, err := DecodeEnvVars("payments", raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Required)
	assert.False(t, got[1].Required)

	_, err = DecodeEnvVars("payments", []byte(`[{"description":"no key"}]`))
	assert.Error(t, err)
}

func TestDecodeNPMPackages(t *testing.T) {
	t.Run("kind defaults to runtime", func(t *testing.T) {
		raw := []byte(`[{"name":"stripe","version":"^14.21.0"}]`)
		got, err := DecodeNPMPackages("payments", raw)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, KindRuntime, got[0].Kind)
		assert.Equal(t, TargetServer, got[0].ManifestTarget())
	})

	t.Run("explicit web target", func(t *testing.T) {
		raw := []byte(`[{"name":"@tanstack/react-table","version":"^8.13.2","kind":"runtime","target":"web"}]`)
		got, err := DecodeNPMPackages("admin", raw)
		require.NoError(t, err)
		assert.Equal(t, TargetWeb, got[0].ManifestTarget())
	})

	t.Run("bad kind rejected", func(t *testing.T) {
		raw := []byte(`[{"name":"stripe","version":"1.0.0","kind":"optional"}]`)
		_, err := DecodeNPMPackages("payments", raw)
		require.Error(t, err)

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "npmPackages", de.Column)
	})
}

func TestDecodeErrorMessage(t *testing.T) {
	_, err := DecodeEnvVars("payments", []byte(`{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"payments"`)
	assert.Contains(t, err.Error(), `"envVars"`)
}
