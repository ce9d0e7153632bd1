package locale_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"password_expiry_notifier/internal/domain/notification"
	"password_expiry_notifier/internal/infra/locale"
)

func TestParse(t *testing.T) {
	tests := map[string]locale.Tag{
		"en":    locale.English,
		"en-US": locale.English,
		"fr-CH": locale.French,
		" de ":  locale.German,
	}
	for in, want := range tests {
		got, err := locale.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"it", "xx-YY", "not a tag", ""} {
		_, err := locale.Parse(bad)
		assert.ErrorIs(t, err, locale.ErrUnsupportedLocale, bad)
	}
}

func TestParseList_KeepsOrderAndDropsDuplicates(t *testing.T) {
	tags, err := locale.ParseList("fr-CH, en, fr")
	require.NoError(t, err)
	assert.Equal(t, []locale.Tag{locale.French, locale.English}, tags)

	_, err = locale.ParseList("en,it")
	assert.ErrorIs(t, err, locale.ErrUnsupportedLocale)

	_, err = locale.ParseList(" , ")
	assert.ErrorIs(t, err, locale.ErrUnsupportedLocale)
}

func TestNewCatalog_EveryBundleIsComplete(t *testing.T) {
	catalog, err := locale.NewCatalog(locale.Supported)
	require.NoError(t, err)

	data := map[string]interface{}{
		"Name": "Jane", "AccountID": "jdoe", "Organization": "Acme", "Date": "d", "Time": "t",
		"DaysLeft": "n", "ForcedDate": "d", "ForcedTime": "t", "PolicyDays": "p", "ChangeURL": "u", "Recipient": "r",
		"Weekday": "Monday", "Day": 10, "Month": "March", "Year": 2025,
	}
	for _, tag := range locale.Supported {
		phrases := catalog.Phrases(tag)
		for _, id := range locale.RequiredMessageIDs() {
			if id == locale.MsgDaysCount {
				continue
			}
			text, err := phrases.Text(id, data)
			require.NoError(t, err, "%s/%s", tag, id)
			assert.NotEmpty(t, text, "%s/%s", tag, id)
			assert.NotContains(t, text, "<no value>", "%s/%s", tag, id)
		}
	}
}

func TestRequiredMessageIDs_CoverEveryTemplateAndAudience(t *testing.T) {
	ids := make(map[string]bool)
	for _, id := range locale.RequiredMessageIDs() {
		ids[id] = true
	}
	templates := []notification.Template{
		notification.TemplateNewUser, notification.TemplateExpired, notification.TemplateToday,
		notification.TemplateTomorrow, notification.TemplateInFewDays,
	}
	for _, tpl := range templates {
		for _, a := range []notification.Audience{notification.AudienceInternal, notification.AudienceExternal} {
			assert.True(t, ids[locale.SubjectID(tpl, a)], locale.SubjectID(tpl, a))
			assert.True(t, ids[locale.BodyID(tpl, a)], locale.BodyID(tpl, a))
		}
	}
}

func TestPhrases_DaysUsesPluralRules(t *testing.T) {
	catalog, err := locale.NewCatalog([]locale.Tag{locale.English, locale.French})
	require.NoError(t, err)

	en := catalog.Phrases(locale.English)
	one, err := en.Days(1)
	require.NoError(t, err)
	assert.Equal(t, "1 day", one)
	many, err := en.Days(5)
	require.NoError(t, err)
	assert.Equal(t, "5 days", many)

	fr := catalog.Phrases(locale.French)
	zero, err := fr.Days(0)
	require.NoError(t, err)
	assert.Equal(t, "0 jour", zero)
}

func TestPhrases_DateAndClock(t *testing.T) {
	catalog, err := locale.NewCatalog([]locale.Tag{locale.English, locale.French, locale.German})
	require.NoError(t, err)
	ts := time.Date(2025, time.March, 10, 17, 5, 0, 0, time.UTC)

	en, err := catalog.Phrases(locale.English).Date(ts)
	require.NoError(t, err)
	assert.Equal(t, "Monday, March 10, 2025", en)

	fr, err := catalog.Phrases(locale.French).Date(ts)
	require.NoError(t, err)
	assert.Equal(t, "lundi 10 mars 2025", fr)

	de, err := catalog.Phrases(locale.German).Date(ts)
	require.NoError(t, err)
	assert.Equal(t, "Montag, 10. März 2025", de)

	assert.Equal(t, "17:05", catalog.Phrases(locale.German).Clock(ts))
}
