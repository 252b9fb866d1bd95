package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUserType(t *testing.T) {
	assert.Equal(t, UserTypeProfessional, NormalizeUserType("professional"))
	assert.Equal(t, UserTypePatient, NormalizeUserType("patient"))
	assert.Equal(t, UserTypePatient, NormalizeUserType(""))
	assert.Equal(t, UserTypePatient, NormalizeUserType("admin"))
	assert.Equal(t, UserTypePatient, NormalizeUserType("PROFESSIONAL"))
}

func TestIsTrialEligible(t *testing.T) {
	assert.True(t, (&User{UserType: UserTypePatient}).IsTrialEligible())
	assert.False(t, (&User{UserType: UserTypeProfessional}).IsTrialEligible())
}

func TestGenerateAPIKey(t *testing.T) {
	raw, hash, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, raw, hash)
	assert.Equal(t, hash, HashAPIKey(raw))

	raw2, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}

func TestSubscriptionIsEntitling(t *testing.T) {
	assert.True(t, (&Subscription{Status: SubscriptionStatusActive}).IsEntitling())
	assert.True(t, (&Subscription{Status: SubscriptionStatusTrialing}).IsEntitling())
	assert.False(t, (&Subscription{Status: SubscriptionStatusPastDue}).IsEntitling())
	assert.False(t, (&Subscription{Status: SubscriptionStatusCanceled}).IsEntitling())
	assert.False(t, (&Subscription{Status: SubscriptionStatusInactive}).IsEntitling())
}
