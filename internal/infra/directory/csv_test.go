package directory_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"password_expiry_notifier/internal/domain/account"
	"password_expiry_notifier/internal/infra/directory"
)

const snapshot = `SamAccountName;DisplayName;Mail;PasswordNeverExpires;PasswordExpired;CannotChangePassword;PasswordExpiryTime;PolicyName;MaxPasswordAgeDays;Groups
jdoe;John Doe;jdoe@example.com;False;False;False;133862400000000000;Staff;90;Pilot|VPN Users
asmith;Anna Smith;;True;False;True;;Staff;90;Pilot
svc_backup;Backup;;True;False;False;;;;
;;;;;;;;;Contractors
`

func TestCSVDirectory_Enumerate(t *testing.T) {
	d, err := directory.ParseCSVDirectory(strings.NewReader(snapshot))
	require.NoError(t, err)

	recs, err := d.EnumerateEnabledAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "jdoe", recs[0].ID)
	assert.Equal(t, "John Doe", recs[0].DisplayName)
	assert.Equal(t, "jdoe@example.com", recs[0].Email)
	assert.Equal(t, "133862400000000000", recs[0].RawPasswordExpiry)
	assert.False(t, recs[0].PasswordNeverExpires)

	assert.Empty(t, recs[1].Email)
	assert.True(t, recs[1].PasswordNeverExpires)
	assert.True(t, recs[1].CannotChangePassword)

	p, err := d.ResolvePasswordPolicy(context.Background(), recs[0])
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Staff", p.Name)
	assert.Equal(t, 90*24*time.Hour, p.MaxPasswordAge)

	p, err = d.ResolvePasswordPolicy(context.Background(), recs[2])
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCSVDirectory_Groups(t *testing.T) {
	d, err := directory.ParseCSVDirectory(strings.NewReader(snapshot))
	require.NoError(t, err)

	members, err := d.ListGroupMembers(context.Background(), "pilot")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	members, err = d.ListGroupMembers(context.Background(), "VPN Users")
	require.NoError(t, err)
	assert.Contains(t, members, "jdoe")

	_, err = d.ListGroupMembers(context.Background(), "Finance")
	assert.ErrorIs(t, err, directory.ErrGroupNotFound)
}

func TestCSVDirectory_EmptyGroupHasNoMembers(t *testing.T) {
	d, err := directory.ParseCSVDirectory(strings.NewReader(snapshot))
	require.NoError(t, err)

	members, err := d.ListGroupMembers(context.Background(), "contractors")
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)

	recs, err := d.EnumerateEnabledAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestCSVDirectory_SetAccountFlag(t *testing.T) {
	d, err := directory.ParseCSVDirectory(strings.NewReader(snapshot))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.SetAccountFlag(ctx, "asmith", account.FlagPasswordNeverExpires, false))
	require.NoError(t, d.SetAccountFlag(ctx, "asmith", account.FlagCannotChangePassword, false))

	recs, err := d.EnumerateEnabledAccounts(ctx)
	require.NoError(t, err)
	assert.False(t, recs[1].PasswordNeverExpires)
	assert.False(t, recs[1].CannotChangePassword)

	assert.ErrorIs(t, d.SetAccountFlag(ctx, "ghost", account.FlagPasswordNeverExpires, false), directory.ErrAccountNotFound)
}

func TestCSVDirectory_ReadsUTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte("SamAccountName,Mail\r\nmüller,mueller@example.com\r\n"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "accounts.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	d, err := directory.OpenCSVDirectory(path)
	require.NoError(t, err)
	recs, err := d.EnumerateEnabledAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "müller", recs[0].ID)
	assert.Equal(t, "mueller@example.com", recs[0].Email)
}

func TestCSVDirectory_RequiresAccountColumn(t *testing.T) {
	_, err := directory.ParseCSVDirectory(bytes.NewReader([]byte("Name;Mail\nx;y\n")))
	assert.ErrorIs(t, err, directory.ErrMissingColumn)
}
