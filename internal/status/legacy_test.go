package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prettyListing = "+--------+----------+-------------+----------------------------+------------------------+\n" +
	"| Job ID | App Name |   Status    |         Created At         |          URL           |\n" +
	"+--------+----------+-------------+----------------------------+------------------------+\n" +
	"|   j1   |   demo   | \x1b[32mcompleted\x1b[0m | 2024-03-01T10:20:30.123456 | https://demo.example.com |\n" +
	"|   j2   |   demo   | \x1b[33min_progress\x1b[0m | 2024-03-02T08:00:00 |          N/A           |\n" +
	"|   j3   |   demo   | \x1b[31mfailed\x1b[0m | None |          N/A           |\n" +
	"+--------+----------+-------------+----------------------------+------------------------+\n"

func TestParseLegacyListing_Pretty(t *testing.T) {
	got, err := ParseLegacyListing(prettyListing)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "j1", got[0].ID)
	assert.Equal(t, "demo", got[0].Name)
	assert.Equal(t, Completed, got[0].State)
	assert.Equal(t, "completed", got[0].RawStatus)
	assert.Equal(t, "https://demo.example.com", got[0].URL)
	require.NotNil(t, got[0].CreatedAt)

	assert.Equal(t, InProgress, got[1].State)
	assert.Empty(t, got[1].URL)

	assert.Equal(t, Failed, got[2].State)
	assert.Nil(t, got[2].CreatedAt)
}

func TestParseLegacyListing_PlainPipes(t *testing.T) {
	text := "id | name | status\n" +
		"---|------|-------\n" +
		"abc | api | deploying\n"

	got, err := ParseLegacyListing(text)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
	assert.Equal(t, "api", got[0].Name)
	assert.Equal(t, InProgress, got[0].State, "unknown status fails open")
}

func TestParseLegacyListing_HeaderOnly(t *testing.T) {
	got, err := ParseLegacyListing("| Job ID | Status |\n")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseLegacyListing_NoTable(t *testing.T) {
	_, err := ParseLegacyListing("No deployments found.\n")
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "failed", StripANSI("\x1b[31mfailed\x1b[0m"))
}
