package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		AdminIDs:                []int64{682938643},
		TelegramBotToken:        "token",
		ChannelID:               -1003464806734,
		DBMaxConns:              25,
		DBMinConns:              5,
		BotMaxInflight:          64,
		BotUpdateTimeoutSeconds: 60,
		PriceUSDT:               50,
		SubscriptionDays:        30,
		ReferralL1Percent:       10,
		ReferralL2Percent:       5,
		AutoSignalsEnabled:      true,
		AutoSignalsPerDay:       4,
		SignalsChannelID:        -100123,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	noChannel := validConfig()
	noChannel.ChannelID = 0
	assert.Error(t, noChannel.Validate())

	noAdmins := validConfig()
	noAdmins.AdminIDs = nil
	assert.Error(t, noAdmins.Validate())

	badPrice := validConfig()
	badPrice.PriceUSDT = 0
	assert.Error(t, badPrice.Validate())

	badPercent := validConfig()
	badPercent.ReferralL1Percent = 150
	assert.Error(t, badPercent.Validate())

	signalsNoChannel := validConfig()
	signalsNoChannel.SignalsChannelID = 0
	assert.Error(t, signalsNoChannel.Validate())

	signalsOff := validConfig()
	signalsOff.AutoSignalsEnabled = false
	signalsOff.SignalsChannelID = 0
	assert.NoError(t, signalsOff.Validate())
}

func TestParseInt64CSV(t *testing.T) {
	ids, err := parseInt64CSV("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseInt64CSV("1,abc")
	assert.Error(t, err)

	ids, err = parseInt64CSV("  ")
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, parseCSV("btcusdt, ETHUSDT ,"))
	assert.Nil(t, parseCSV(""))
}

func TestIsAdmin(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.IsAdmin(682938643))
	assert.False(t, cfg.IsAdmin(1))
}

func TestSignalInterval(t *testing.T) {
	cfg := validConfig()
	cfg.AutoSignalsPerDay = 4
	assert.Equal(t, 6*time.Hour, cfg.SignalInterval())

	cfg.AutoSignalsPerDay = 0
	assert.Equal(t, 24*time.Hour, cfg.SignalInterval())
}
