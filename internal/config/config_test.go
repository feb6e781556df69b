package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SIMON_INGESTION_URL", "https://collect.example.test/http/v1/collect")
	t.Setenv("SIMON_PARTNER_ID", "partner-1")
	t.Setenv("SIMON_PARTNER_SECRET", "s3cret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "partner-1", c.PartnerID)
	assert.Equal(t, 10*time.Second, c.DeliveryTimeout)
	assert.Equal(t, 1, c.DeliveryMaxAttempts)
	assert.Equal(t, 8, c.DeliveryConcurrency)
	assert.Equal(t, "GSI_CustomerId", c.SessionsCustomerIdx)
	assert.Equal(t, "GSI_OrderId", c.SessionsOrderIdx)
	assert.Equal(t, "tracking_events/", c.ArchivePrefix)
	assert.Equal(t, "primary", c.AthenaWorkgroup)
	assert.Equal(t, ":8081", c.HTTPAddr)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DELIVERY_TIMEOUT_MS", "2500")
	t.Setenv("DELIVERY_MAX_ATTEMPTS", "0")
	t.Setenv("DELIVERY_CONCURRENCY", "not-a-number")
	t.Setenv("TRACKING_TIMEZONE", "UTC")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, c.DeliveryTimeout)
	assert.Equal(t, 1, c.DeliveryMaxAttempts)
	assert.Equal(t, 8, c.DeliveryConcurrency)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("SIMON_INGESTION_URL", "")
	t.Setenv("SIMON_PARTNER_ID", "")
	t.Setenv("SIMON_PARTNER_SECRET", "")
	t.Setenv("SIMON_PARTNER_SECRET_PARAM", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSetting))
	assert.Contains(t, err.Error(), "SIMON_INGESTION_URL")
	assert.Contains(t, err.Error(), "SIMON_PARTNER_ID")
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	_, err := Config{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(ctx, aws.ToString(in.Name), aws.ToBool(in.WithDecryption))
	out, _ := args.Get(0).(*ssm.GetParameterOutput)
	return out, args.Error(1)
}

func TestResolveSecretsFromSSM(t *testing.T) {
	client := new(mockSSM)
	client.On("GetParameter", mock.Anything, "/simon/partner-secret", true).Return(&ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String("from-ssm")},
	}, nil)

	c := Config{PartnerSecretParam: "/simon/partner-secret"}
	require.NoError(t, c.ResolveSecrets(context.Background(), client))

	assert.Equal(t, "from-ssm", c.PartnerSecret)
	client.AssertExpectations(t)
}

func TestResolveSecretsExplicitWins(t *testing.T) {
	client := new(mockSSM)

	c := Config{PartnerSecret: "env", PartnerSecretParam: "/simon/partner-secret"}
	require.NoError(t, c.ResolveSecrets(context.Background(), client))

	assert.Equal(t, "env", c.PartnerSecret)
	client.AssertNotCalled(t, "GetParameter", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveSecretsError(t *testing.T) {
	client := new(mockSSM)
	client.On("GetParameter", mock.Anything, "/missing", true).Return(nil, errors.New("ParameterNotFound"))

	c := Config{PartnerSecretParam: "/missing"}
	err := c.ResolveSecrets(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ParameterNotFound")
}
